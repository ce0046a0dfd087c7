package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newMetadataCmd creates the 'backfill-metadata' subcommand.
func newMetadataCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-metadata",
		Short: "Extract metadata from archived title pages",
		Long: `Selects every identifier with a reachable title page and no stored
metadata, evaluates the page's embedded payload, and persists the
extracted title, release year, runtime and content type.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Runner().BackfillMetadata(cmd.Context())
			if err != nil {
				return fmt.Errorf("backfill metadata: %w", err)
			}
			reportSummary("metadata", report)
			return nil
		},
	}
}
