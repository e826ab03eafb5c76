package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shelfsync/internal/resolver"
)

func newResyncCmd() *cobra.Command {
	var (
		days   int
		limit  int
		source string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "resync <kind>",
		Short: "Refetch entities whose last sync is older than the cutoff",
		Long: `Selects identifiers of the kind from the sync ledger whose last
successful reconciliation predates the cutoff, oldest first, and resolves
them again with a forced refetch. Requires a configured database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}

			cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			ids, err := a.StaleIDs(cmd.Context(), kind, cutoff, source, limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no stale %s entities older than %d days\n", kind, days)
				return nil
			}

			summary := a.Resolver.ResolveMany(cmd.Context(), kind, ids, resolver.Options{
				Scrape: true,
				DryRun: dryRun,
				Source: source,
			})

			printSummary(cmd, summary)
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d identifiers failed", summary.Failed, len(summary.Outcomes))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "staleness cutoff in days")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum identifiers to resync (0 = no limit)")
	cmd.Flags().StringVar(&source, "source", "", "only resync entities discovered via this source")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the pipeline without writing the catalog or the ledger")

	return cmd
}
