package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
	"github.com/tendant/simple-icon-tester/pkg/runner"
)

func newCheckCmd(cfgFile *string) *cobra.Command {
	var visual bool
	var out string

	cmd := &cobra.Command{
		Use:   "check [--visual] FILE...",
		Short: "Run a report pipeline locally, without the HTTP service",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, *cfgFile)
			if err != nil {
				return err
			}

			r, err := runner.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer r.Shutdown()

			res, err := r.Check(cmd.Context(), jobFor(visual), args)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, res.Report, 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			if res.Fallback {
				return fmt.Errorf("validation tool produced no report, diagnostics written to %s", out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Report for %d file(s) written to %s\n", res.Files, out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&visual, "visual", false, "Produce the visual report instead of the validation report")
	cmd.Flags().StringVarP(&out, "out", "o", pipeline.DefaultReportName, "Report output path")
	return cmd
}

func jobFor(visual bool) string {
	if visual {
		return pipeline.JobTestVisual
	}
	return pipeline.JobTestSVG
}
