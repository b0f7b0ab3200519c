package main

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/advanced-filters-api/pkg/config"
	"github.com/noah-isme/advanced-filters-api/pkg/database"
	"github.com/noah-isme/advanced-filters-api/pkg/logger"
)

// app carries the dependencies shared by subcommands. They are created lazily so that
// offline commands such as inspect never touch the database.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func (a *app) database() (*sqlx.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	dbCfg := a.cfg.Database
	dbCfg.ApplicationName = "filterctl"
	db, err := database.NewPostgres(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "filterctl",
		Short:         "Operate on saved advanced filters",
		SilenceErrors: true,
		SilenceUsage:  true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if format, _ := cmd.Flags().GetString("format"); format != "" {
				cfg.Filters.QueryFormat = format
			}
			l, err := logger.New(cfg)
			if err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			a.cfg, a.logger = cfg, l
			return nil
		},
	}

	cmd.PersistentFlags().String("format", "", "query wire format (json, msgpack); defaults to FILTERS_QUERY_FORMAT")

	cmd.AddCommand(
		newInspectCommand(a),
		newReencodeCommand(a),
		newBackfillCommand(a),
		newTokenCommand(a),
	)
	return cmd
}
