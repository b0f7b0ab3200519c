package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/internal/repository"
)

func newBackfillCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-model-names",
		Short: "Populate model_name from the model label of every filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			updated, err := repository.NewAdvancedFilterRepository(db).BackfillModelNames(cmd.Context())
			if err != nil {
				return err
			}
			a.logger.Info("model names backfilled", zap.Int64("rows", updated))
			fmt.Fprintf(cmd.OutOrStdout(), "%d rows updated\n", updated)
			return nil
		},
	}
}
