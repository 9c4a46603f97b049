package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/bookmap/pkg/geocode"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the geocode cache",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("cache")
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count cached positive and negative answers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		l, ok := s.(geocode.Lister)
		if !ok {
			n, err := s.Len(ctx)
			if err != nil {
				return eris.Wrap(err, "cache stats")
			}
			fmt.Printf("Entries: %d\n", n)
			return nil
		}
		entries, err := l.Entries(ctx)
		if err != nil {
			return eris.Wrap(err, "cache stats")
		}
		formatCacheStats(os.Stdout, cfg.Geocode.Cache.Driver, geocode.Summarize(entries))
		return nil
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get <parish>",
	Short: "Show the cached answer for a parish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		canton, _ := cmd.Flags().GetString("canton")
		prov, _ := cmd.Flags().GetString("province")
		key := geocode.Key(args[0], canton, prov)

		e, ok, err := s.Get(ctx, key)
		if err != nil {
			return eris.Wrap(err, "cache get")
		}
		return json.NewEncoder(os.Stdout).Encode(cacheLookup{Key: key, Cached: ok, Entry: e})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached answer, including negatives",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		s, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		n, _ := s.Len(ctx)
		if err := s.Clear(ctx); err != nil {
			return eris.Wrap(err, "cache clear")
		}
		fmt.Fprintf(os.Stderr, "Removed %d entries.\n", n)
		return nil
	},
}

var cacheImportCmd = &cobra.Command{
	Use:   "import <cache.json>",
	Short: "Copy a JSON cache file into the configured store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := initCache(ctx)
		if err != nil {
			return err
		}
		defer s.Close() //nolint:errcheck

		n, err := geocode.Copy(ctx, s, geocode.NewFileStore(args[0]))
		if err != nil {
			return eris.Wrap(err, "cache import")
		}
		fmt.Fprintf(os.Stderr, "Imported %d entries into the %s cache.\n", n, cfg.Geocode.Cache.Driver)
		return nil
	},
}

func init() {
	cacheGetCmd.Flags().String("canton", "", "canton part of the key")
	cacheGetCmd.Flags().String("province", "", "province part of the key")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheGetCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheImportCmd)
	rootCmd.AddCommand(cacheCmd)
}

// cacheLookup is printed by cache get.
type cacheLookup struct {
	Key    string        `json:"key"`
	Cached bool          `json:"cached"`
	Entry  geocode.Entry `json:"entry"`
}

// formatCacheStats writes cache counts to w.
func formatCacheStats(out io.Writer, driver string, s geocode.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Driver:\t%s\n", driver)
	_, _ = fmt.Fprintf(w, "Entries:\t%d\n", s.Entries)
	_, _ = fmt.Fprintf(w, "Found:\t%d\n", s.Positives)
	_, _ = fmt.Fprintf(w, "Not found:\t%d\n", s.Negatives)
	_ = w.Flush()
}
