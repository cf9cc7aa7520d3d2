package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iudanet/aishu/internal/config"
	"github.com/iudanet/aishu/internal/server/storage"
	"github.com/iudanet/aishu/internal/server/storage/boltdb"
	"github.com/iudanet/aishu/internal/server/storage/sqlite"
)

// app общее состояние команд: viper с привязанными флагами
type app struct {
	v       *viper.Viper
	envFile string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "aishu-server",
		Short:         "AI-Shu feature flags and CSRF token service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(a.envFile)
			if err != nil {
				return err
			}
			for key, name := range map[string]string{
				config.KeyStorageDriver: "storage-driver",
				config.KeyStoragePath:   "storage-path",
			} {
				if err := v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
			a.v = v
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "path to .env file (ignored if missing)")
	root.PersistentFlags().String("storage-driver", config.DriverSQLite, "storage driver: sqlite or bolt")
	root.PersistentFlags().String("storage-path", "aishu.db", "path to database file")

	root.AddCommand(
		newServeCmd(a),
		newVersionCmd(),
		newFlagsCmd(a),
		newTokenCmd(a),
		newRemoteCmd(),
	)

	return root
}

// load строит конфигурацию и логгер
func (a *app) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.FromViper(a.v)
	if err != nil {
		return nil, nil, err
	}
	logger := config.NewLogger(os.Stderr, cfg.Environment, cfg.LogLevel)
	if cfg.UsingDevSecret {
		logger.Warn("USING BUILT-IN DEVELOPMENT SECRET: set AISHU_CSRF_SECRET and AISHU_JWT_SECRET",
			"environment", cfg.Environment)
	}
	return cfg, logger, nil
}

// openStore открывает хранилище выбранного драйвера
func openStore(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageDriver {
	case config.DriverBolt:
		return boltdb.New(ctx, cfg.StoragePath)
	default:
		return sqlite.New(ctx, cfg.StoragePath)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion()
		},
	}
}
