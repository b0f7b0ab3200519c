package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/advanced-filters-api/internal/repository"
	"github.com/noah-isme/advanced-filters-api/internal/service"
)

func newTokenCommand(a *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Sign an access token for a stored user, for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			users := repository.NewUserRepository(db)
			user, err := users.FindByID(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load user %s: %w", args[0], err)
			}
			groups, err := users.GroupIDs(cmd.Context(), user.ID)
			if err != nil {
				return fmt.Errorf("load groups of %s: %w", user.ID, err)
			}

			auth := service.NewAuthService(a.logger, service.AuthConfig{
				AccessTokenSecret: a.cfg.JWT.Secret,
				AccessTokenExpiry: ttl,
				Issuer:            a.cfg.JWT.Issuer,
				Audience:          a.cfg.JWT.Audience,
			})
			token, expiresAt, err := auth.IssueToken(*user, groups)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
