package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iudanet/aishu/internal/server/handlers"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		role string
		ttl  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.AccessTokenTTL
			}

			token, _, err := handlers.GenerateAccessToken(handlers.JWTConfig{
				Secret:         cfg.JWTSecret,
				AccessTokenTTL: ttl,
			}, args[0], role)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "role claim, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default jwt.access_ttl)")
	return cmd
}
