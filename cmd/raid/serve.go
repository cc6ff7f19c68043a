package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/raid-extract/internal/api"
	"github.com/MJE43/raid-extract/internal/catalog"
	"github.com/MJE43/raid-extract/internal/config"
	"github.com/MJE43/raid-extract/internal/logging"
	"github.com/MJE43/raid-extract/internal/store"
)

func newServeCmd() *cobra.Command {
	cfg, loadErr := config.LoadServer()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the seed and validation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if loadErr != nil {
				return loadErr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := store.NewSQLiteDB(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}

			cat, err := catalog.Load(cfg.CatalogPath)
			if err != nil {
				return err
			}

			srv := api.NewServer(db, cat, api.NewTokens(cfg.TokenSecret, cfg.TokenIssuer), logger,
				api.WithAllowedOrigins(cfg.AllowedOrigins),
				api.WithRequestTimeout(cfg.RequestTimeout),
			)
			logger.Info("starting seed service",
				zap.String("db", cfg.DBPath),
				zap.String("catalog_version", cat.Version),
				zap.String("version", api.EngineVersion),
			)
			return srv.ListenAndServe(cmd.Context(), cfg.Addr, cfg.ShutdownTimeout)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	cmd.Flags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	cmd.Flags().StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "catalog override YAML")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	cmd.Flags().BoolVar(&cfg.Development, "dev", cfg.Development, "human-readable logs")
	return cmd
}
