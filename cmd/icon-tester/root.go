package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-icon-tester/internal/config"
	"github.com/tendant/simple-icon-tester/internal/logging"
)

var (
	// Set at build time with -ldflags
	version = "dev"
	commit  = "none"
)

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "icon-tester",
		Short: "Validates and previews SVG icon batches",
		Long: `icon-tester accepts batches of SVG icon files, checks them against the
icon catalog and answers with an HTML report.

The validation report comes from an external test tool run over the batch.
The visual report shows every icon with an outline and a small raster preview.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Configuration shared by every command that runs a pipeline
	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (yaml, json or toml)")
	pf.String("catalog", "", "Catalog document path (default ./openmoji/data/openmoji-tester.json)")
	pf.String("tmp-root", "", "Directory holding job workspaces (default system temp dir)")
	pf.String("tool-dir", "", "Working directory of the validation tool (default .)")
	pf.String("tool-command", "", "Validation tool executable (default node_modules/.bin/mocha)")
	pf.String("template", "", "Visual report template (default built-in)")
	pf.Int("preview-size", 0, "Raster preview size in pixels, 0 keeps the configured value (default 72)")
	pf.Int64("max-file-size", 0, "Per-file size limit in bytes (default 2 MiB)")
	pf.Int("max-files", 0, "Files per batch limit (default 4000)")
	pf.Int("concurrency", 0, "Files transformed in parallel (default number of CPUs)")
	pf.String("log-level", "", "Log level: debug, info, warn or error (default info)")
	pf.String("log-format", "", "Log format: text or json (default text)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newCheckCmd(&cfgFile),
		newSubmitCmd(),
	)
	return root
}

// loadConfig merges configuration for cmd and installs the process logger
func loadConfig(cmd *cobra.Command, cfgFile string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
