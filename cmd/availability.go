package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newAvailabilityCmd creates the 'check-availability' subcommand.
func newAvailabilityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-availability",
		Short: "Re-check stale availability verdicts",
		Long: `Selects every catalog identifier whose last availability check is
older than the freshness window and re-verifies it against the remote
service, persisting the verdicts and archiving reachable title pages.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Runner().CheckAvailability(cmd.Context())
			if err != nil {
				return fmt.Errorf("check availability: %w", err)
			}
			reportSummary("availability", report)
			return nil
		},
	}
}
