package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patidost/listing-service/internal/adapter/repository/postgres"
	"github.com/patidost/listing-service/internal/app"
	"github.com/patidost/listing-service/internal/config"
	"github.com/patidost/listing-service/internal/platform/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "patidost",
	Short: "PatiDost listing synchronization service",
	Long: `Keeps a live, ordered copy of the PatiDost pet listings for the signed-in
user and serves it, together with listing writes and chats, over a local
HTTP API.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and gRPC servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info("Application starting...", "service_name", app.ServiceName, "env", cfg.Env)
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to initialize application", "error", err)
			return err
		}
		return a.Run(ctx)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := load()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()
		return postgres.Migrate(cfg.Postgres.DSN, log)
	},
}

func load() (*config.Config, *logger.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot load config: %w", err)
	}
	log := logger.NewLogger(&logger.LoggerConfig{Level: cfg.Logger.Level, Format: cfg.Logger.Encoding})
	return cfg, log, nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the YAML config file (environment only when empty)")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
