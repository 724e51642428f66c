package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CrowderSoup/agenda-app/config"
	"github.com/CrowderSoup/agenda-app/database"
	"github.com/CrowderSoup/agenda-app/retry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	envFile    string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Agenda aggregation service",
	Long: `agenda merges appointments, activities, projects, deadlines and to-dos
into day, week and month views, serves kanban boards over them and exposes
a generic table explorer for the backing database.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = buildLogger(cfg.Logging, verbose || cfg.Agenda.Debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		zap.ReplaceGlobals(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func buildLogger(lc config.LoggingConfig, debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		level, err := zapcore.ParseLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

// openStore opens the configured database and creates the agenda tables when
// the backend is SQLite.
func openStore(ctx context.Context) (database.Store, error) {
	store, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}
	if m, ok := store.(interface{ Migrate(context.Context) error }); ok {
		if err := m.Migrate(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return store, nil
}

func retryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Retries = cfg.Agenda.Retries
	return p
}

func location() *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		// Validate already rejected bad zones
		return time.Local
	}
	return loc
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agenda.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, migrateCmd, viewCmd, tablesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
