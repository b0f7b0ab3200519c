package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/advanced-filters-api/internal/repository"
	"github.com/noah-isme/advanced-filters-api/internal/service"
	"github.com/noah-isme/advanced-filters-api/pkg/query"
)

func newReencodeCommand(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reencode",
		Short: "Rewrite every stored query in the configured wire format",
		Long:  "Decodes every stored query, legacy payloads included, and writes it back in the configured format. Rows that cannot be decoded, or that exceed the query length limit even in msgpack, are reported and left as they are.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			migrator := service.NewQueryMigrator(repository.NewAdvancedFilterRepository(db), query.Format(a.cfg.Filters.QueryFormat), a.cfg.Filters.MaxQueryLength, a.logger)
			report, err := migrator.Reencode(cmd.Context(), dryRun)
			if report != nil {
				body, _ := json.MarshalIndent(report, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			}
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d stored queries could not be rewritten", len(report.Failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing")
	return cmd
}
