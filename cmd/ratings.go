package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRatingsCmd creates the 'populate-ratings' subcommand.
func newRatingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "populate-ratings",
		Short: "Collect third-party ratings for available titles",
		Long: `Selects every available title still missing a Google users rating,
searches for it through the scraping proxy, and persists whatever
vendor ratings the result page carries.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Runner().PopulateRatings(cmd.Context())
			if err != nil {
				return fmt.Errorf("populate ratings: %w", err)
			}
			reportSummary("ratings", report)
			return nil
		},
	}
}
