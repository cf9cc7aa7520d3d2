package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	clientapi "github.com/iudanet/aishu/internal/client/api"
	"github.com/iudanet/aishu/pkg/api"
)

// newRemoteCmd команды для работы с запущенным сервером по HTTP
func newRemoteCmd() *cobra.Command {
	var (
		serverURL string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query or manage flags on a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "url", "http://localhost:8080", "server base URL")
	cmd.PersistentFlags().StringVar(&token, "token", "", "access token (see 'token' command)")

	features := &cobra.Command{
		Use:   "features",
		Short: "Show flags as evaluated for the token's user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := clientapi.NewClient(serverURL, token).Features(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(flags))
			for name := range flags {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", name, flags[name])
			}
			return nil
		},
	}

	var (
		enabled     bool
		percentage  int
		environment string
	)
	set := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or update a flag through the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.FlagPatchRequest
			if cmd.Flags().Changed("enabled") {
				req.Enabled = &enabled
			}
			if cmd.Flags().Changed("rollout") {
				req.RolloutPercentage = &percentage
			}
			if cmd.Flags().Changed("env") {
				req.Environment = &environment
			}

			flag, err := clientapi.NewClient(serverURL, token).SetFlag(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled=%t rollout=%d%% environment=%s\n",
				flag.Name, flag.Enabled, flag.RolloutPercentage, flag.Environment)
			return nil
		},
	}
	set.Flags().BoolVar(&enabled, "enabled", false, "global switch")
	set.Flags().IntVar(&percentage, "rollout", 0, "rollout percentage 0-100")
	set.Flags().StringVar(&environment, "env", "", "target environment")

	cmd.AddCommand(features, set)
	return cmd
}
