package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bookmap/internal/analysis"
)

var (
	analyzeInput    string
	analyzeProvince string
	analyzeOut      string
	analyzeOffline  bool
	analyzeJSON     bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze one registry export and write the map",
	Long:  "Loads a CSV, XLSX or ZIP export (path or URL), keeps active bookstores, locates them inside the province and writes map.html, markers.geojson and report.json.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if analyzeProvince != "" {
			cfg.Province.Name = analyzeProvince
		}
		if analyzeOut != "" {
			cfg.Output.Dir = analyzeOut
		}

		env, err := initEnv(ctx, envOptions{Mode: "analyze", Offline: analyzeOffline})
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Analyzer.AnalyzeFile(ctx, analyzeInput)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		if analyzeJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(run.Report)
		}
		fmt.Print(analysis.FormatSummary(run.Report))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "registry export to analyze (path or URL)")
	analyzeCmd.Flags().StringVar(&analyzeProvince, "province", "", "province to map (default: detect from file name or data)")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "output directory (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeOffline, "offline", false, "do not query the geocoder; use cached answers only")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the JSON report instead of the summary")
	_ = analyzeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(analyzeCmd)
}
