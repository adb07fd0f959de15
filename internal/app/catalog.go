package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"kinobot/internal/domain/ports"
	"kinobot/internal/repository/memory"
	mongorepo "kinobot/internal/repository/mongo"
	"kinobot/internal/repository/sqlite"
)

// OpenCatalog connects the backend named by CatalogBackend and returns the
// catalog, its search log and a close function.
func OpenCatalog(ctx context.Context, cfg Config, logger *slog.Logger) (ports.Catalog, ports.SearchLogRepository, func(), error) {
	switch cfg.CatalogBackend {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongorepo.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, fmt.Errorf("mongo ping: %w", err)
		}
		repo := mongorepo.NewRepository(client, cfg.MongoDatabase, "catalog")
		logs := mongorepo.NewSearchLogRepository(client, cfg.MongoDatabase, "search_logs")
		if err := repo.EnsureIndexes(connectCtx); err != nil {
			logger.Warn("catalog index creation failed", slog.String("error", err.Error()))
		}
		if err := logs.EnsureIndexes(connectCtx); err != nil {
			logger.Warn("search log index creation failed", slog.String("error", err.Error()))
		}
		closer := func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(disconnectCtx)
		}
		return repo, logs, closer, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("sqlite catalog opened", slog.String("path", store.Path()))
		return store, store, func() { _ = store.Close() }, nil
	case "memory":
		logger.Warn("using in-memory catalog, entries are lost on restart")
		catalog := memory.NewCatalog()
		return catalog, catalog, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown catalog backend %q", cfg.CatalogBackend)
	}
}
