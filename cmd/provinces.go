package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/bookmap/internal/province"
)

var provincesCmd = &cobra.Command{
	Use:   "provinces",
	Short: "List the province catalog and reference centers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog, err := province.LoadCatalog(cfg.Province.CatalogPath)
		if err != nil {
			return err
		}
		formatProvinces(os.Stdout, catalog.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(provincesCmd)
}

// formatProvinces writes one line per province to w.
func formatProvinces(out io.Writer, provinces []province.Province) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVINCE\tLAT\tLON")
	for _, p := range provinces {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", p.Name, p.Center.Lat, p.Center.Lon)
	}
	_ = w.Flush()
}
