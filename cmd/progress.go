package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/sells-group/bookmap/internal/resolve"
)

// newProgress returns a progress bar factory writing to f, or nil when f is
// not a terminal so that logs and redirected output stay clean.
func newProgress(f *os.File) func(total int, description string) resolve.Progress {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return nil
	}
	return func(total int, description string) resolve.Progress {
		return progressbar.NewOptions(total,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(f),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
}
