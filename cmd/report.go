// File: cmd/report.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uveworks/vigil/internal/report"
)

func init() {
	rootCmd.AddCommand(newReportCmd())
}

// newReportCmd creates the `report` command, which re-renders a previously
// saved JSON report.
func newReportCmd() *cobra.Command {
	reportCmd := &cobra.Command{
		Use:   "report [report.json]",
		Short: "Re-renders a saved run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := report.LoadJSON(args[0])
			if err != nil {
				return err
			}

			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			switch format {
			case "text":
				return report.RenderText(rep, os.Stdout)
			case "html":
				return report.RenderHTML(rep, os.Stdout)
			case "json":
				return report.RenderJSON(rep, os.Stdout)
			default:
				return fmt.Errorf("unknown format %q (want text, html, or json)", format)
			}
		},
	}

	reportCmd.Flags().StringP("format", "f", "text", "Output format: 'text', 'html', or 'json'.")
	return reportCmd
}
