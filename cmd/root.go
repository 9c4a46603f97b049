package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "bookmap",
	Short: "Map the bookstores of a registry export",
	Long:  "Filters a business-registry export down to active bookstores, locates each one inside a province of Ecuador and renders an interactive map with a run report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is the common case.
		_ = godotenv.Load(".env")

		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
