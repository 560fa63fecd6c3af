package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-icon-tester/pkg/client"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

func newSubmitCmd() *cobra.Command {
	var url, out, field string
	var visual bool

	cmd := &cobra.Command{
		Use:   "submit --url URL [--visual] FILE...",
		Short: "Upload icons to a running service and save its report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := client.New(url).WithField(field).Submit(cmd.Context(), jobFor(visual), args)
			if err != nil {
				return err
			}
			if !report.OK() {
				return fmt.Errorf("service answered %d: %s", report.StatusCode, strings.TrimSpace(string(report.Body)))
			}
			if err := os.WriteFile(out, report.Body, 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Report for %d file(s) written to %s\n", len(args), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "http://localhost:3000", "Base URL of the icon tester")
	cmd.Flags().BoolVar(&visual, "visual", false, "Request the visual report instead of the validation report")
	cmd.Flags().StringVarP(&out, "out", "o", pipeline.DefaultReportName, "Report output path")
	cmd.Flags().StringVar(&field, "field", pipeline.DefaultUploadField, "Multipart field carrying the files")
	return cmd
}
