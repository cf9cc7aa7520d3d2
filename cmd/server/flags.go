package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/rollout"
	"github.com/iudanet/aishu/internal/server/storage"
)

// cliActor автор изменений, сделанных из командной строки
const cliActor = "cli"

// withGate открывает хранилище и вызывает fn с Gate поверх него
func (a *app) withGate(cmd *cobra.Command, fn func(gate *rollout.Gate, store storage.Storage) error) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}

	store, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", slog.Any("error", err))
		}
	}()

	gate := rollout.New(store, cfg.Environment, logger, rollout.WithAudit(store))
	return fn(gate, store)
}

func newFlagsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Manage feature flags",
	}

	cmd.AddCommand(
		newFlagsListCmd(a),
		newFlagsSetCmd(a),
		newFlagsOverrideCmd(a),
		newFlagsUnoverrideCmd(a),
	)
	return cmd
}

func newFlagsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List feature flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGate(cmd, func(_ *rollout.Gate, store storage.Storage) error {
				flags, err := store.ListFlags(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tENABLED\tROLLOUT\tENVIRONMENT\tUPDATED BY\tDESCRIPTION")
				for _, f := range flags {
					fmt.Fprintf(tw, "%s\t%t\t%d%%\t%s\t%s\t%s\n",
						f.Name, f.Enabled, f.RolloutPercentage, f.Environment, f.UpdatedBy, f.Description)
				}
				return tw.Flush()
			})
		},
	}
}

func newFlagsSetCmd(a *app) *cobra.Command {
	var (
		enabled     bool
		percentage  int
		environment string
		description string
	)

	cmd := &cobra.Command{
		Use:   "set NAME",
		Short: "Create or update a feature flag",
		Example: `  aishu-server flags set beta_widget --enabled --rollout 25
  aishu-server flags set beta_widget --env production`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.FlagPatch
			if cmd.Flags().Changed("enabled") {
				patch.Enabled = &enabled
			}
			if cmd.Flags().Changed("rollout") {
				patch.RolloutPercentage = &percentage
			}
			if cmd.Flags().Changed("env") {
				env := models.Environment(environment)
				patch.Environment = &env
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}

			return a.withGate(cmd, func(gate *rollout.Gate, _ storage.Storage) error {
				flag, err := gate.SetFlag(cmd.Context(), args[0], patch, cliActor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: enabled=%t rollout=%d%% environment=%s\n",
					flag.Name, flag.Enabled, flag.RolloutPercentage, flag.Environment)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", false, "global switch")
	cmd.Flags().IntVar(&percentage, "rollout", 0, "rollout percentage 0-100")
	cmd.Flags().StringVar(&environment, "env", "", "target environment: development, staging, production, all")
	cmd.Flags().StringVar(&description, "description", "", "flag description")
	return cmd
}

func newFlagsOverrideCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "override NAME USER_ID true|false",
		Short: "Force a flag on or off for one user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid value %q: expected true or false", args[2])
			}

			return a.withGate(cmd, func(gate *rollout.Gate, _ storage.Storage) error {
				if !gate.SetOverride(cmd.Context(), args[0], args[1], enabled, cliActor) {
					return fmt.Errorf("override not set: flag %q not found or storage unavailable", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: override for %s set to %t\n", args[0], args[1], enabled)
				return nil
			})
		},
	}
}

func newFlagsUnoverrideCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unoverride NAME USER_ID",
		Short: "Remove a user override",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withGate(cmd, func(gate *rollout.Gate, _ storage.Storage) error {
				if !gate.RemoveOverride(cmd.Context(), args[0], args[1], cliActor) {
					return errors.New("override not found")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: override for %s removed\n", args[0], args[1])
				return nil
			})
		},
	}
}
