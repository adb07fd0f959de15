package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"kinobot/internal/app"
	"kinobot/internal/domain/ports"
)

// commandContext carries the connection flags shared by every subcommand.
type commandContext struct {
	cfg    app.Config
	logger *slog.Logger
	open   func(ctx context.Context, cfg app.Config, logger *slog.Logger) (ports.Catalog, ports.SearchLogRepository, func(), error)
}

func (c *commandContext) withCatalog(ctx context.Context, fn func(ports.Catalog, ports.SearchLogRepository) error) error {
	catalog, logs, closer, err := c.open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer closer()
	return fn(catalog, logs)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{
		cfg:    app.LoadConfig(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		open:   app.OpenCatalog,
	}
	return newRootCommandWith(ctx)
}

func newRootCommandWith(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Inspect and maintain the kinobot catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.cfg.CatalogBackend, "backend", ctx.cfg.CatalogBackend, "Catalog backend: mongo, sqlite or memory")
	flags.StringVar(&ctx.cfg.SQLitePath, "sqlite", ctx.cfg.SQLitePath, "SQLite database path")
	flags.StringVar(&ctx.cfg.MongoURI, "mongo-uri", ctx.cfg.MongoURI, "MongoDB connection URI")
	flags.StringVar(&ctx.cfg.MongoDatabase, "mongo-db", ctx.cfg.MongoDatabase, "MongoDB database name")

	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newAddCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newRebuildCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))

	return rootCmd
}
