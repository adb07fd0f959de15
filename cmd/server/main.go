package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	apihttp "kinobot/internal/api/http"
	"kinobot/internal/app"
	"kinobot/internal/bot"
	"kinobot/internal/delivery"
	"kinobot/internal/metrics"
	"kinobot/internal/resultcache"
	"kinobot/internal/search"
	"kinobot/internal/telegram"
	"kinobot/internal/telemetry"
)

var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "kinobot", version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "kinobot"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("catalogBackend", cfg.CatalogBackend),
		slog.Bool("hasBotToken", cfg.BotToken != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("resultCacheTTL", cfg.ResultCacheTTL),
		slog.Duration("deliveryTTL", cfg.DeliveryTTL),
		slog.Bool("deliveryProtect", cfg.DeliveryProtect),
		slog.Int("allowedUsers", len(cfg.AllowedUserIDs)),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, searchLog, closeCatalog, err := app.OpenCatalog(rootCtx, cfg, logger)
	if err != nil {
		logger.Error("catalog open failed", slog.String("backend", cfg.CatalogBackend), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeCatalog()

	cache := buildResultCache(cfg, logger)
	matcher := search.NewMatcher(catalog,
		search.WithLogger(logger),
		search.WithPoolSizes(cfg.SubstringPool, cfg.RecentPool),
		search.WithTitleCacheSize(cfg.TitleCacheSize),
	)
	matchOpts := search.MatchOptions{Limit: cfg.SearchLimit, ScoreCutoff: cfg.SearchScoreCutoff}

	tg := telegram.NewClient(cfg.BotToken,
		telegram.WithBaseURL(cfg.TelegramAPIURL),
		telegram.WithRateLimit(cfg.TelegramRPS, 5),
		telegram.WithLogger(logger),
	)
	scheduler := delivery.NewScheduler(tg, delivery.WithSchedulerLogger(logger))
	pipeline := delivery.NewPipeline(tg, scheduler,
		delivery.WithIndexRepairer(catalog),
		delivery.WithCacheRepairer(cache),
		delivery.WithLogger(logger),
	)

	handler := apihttp.NewServer(matcher, cache,
		apihttp.WithLogger(logger),
		apihttp.WithDelivery(pipeline, cfg.DeliveryProtect, cfg.DeliveryTTL),
		apihttp.WithCatalogStats(catalog),
		apihttp.WithMatchOptions(matchOpts, cfg.PageSize),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, ctx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.BotToken != "" {
		botCfg := bot.Config{
			Match:    matchOpts,
			PageSize: cfg.PageSize,
			Protect:  cfg.DeliveryProtect,
			TTL:      cfg.DeliveryTTL,
		}
		botHandler := bot.NewHandler(tg, matcher, cache, pipeline,
			bot.WithConfig(botCfg),
			bot.WithAccessChecker(bot.NewAllowList(cfg.AllowedUserIDs)),
			bot.WithSearchLogger(searchLog),
			bot.WithLogger(logger),
		)
		poller := telegram.NewPoller(tg, botHandler,
			telegram.WithPollTimeout(cfg.TelegramPoll),
			telegram.WithPollerLogger(logger),
		)
		group.Go(func() error {
			return poller.Run(ctx)
		})
	} else {
		logger.Info("BOT_TOKEN not set, telegram polling disabled")
	}

	logger.Info("kinobot started", slog.String("addr", cfg.HTTPAddr), slog.String("version", version))

	if err := group.Wait(); err != nil {
		logger.Error("service error", slog.String("error", err.Error()))
	}

	// Pending self-destructs are not persisted; a restart forfeits them.
	forfeited := scheduler.Pending()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("self-destruct jobs did not stop in time", slog.String("error", err.Error()))
	}
	logger.Info("kinobot stopped", slog.Int("forfeitedSelfDestructs", forfeited))
}

// buildResultCache prefers Redis so several replicas share result tokens and
// falls back to the in-process store.
func buildResultCache(cfg app.Config, logger *slog.Logger) resultcache.Store {
	memoryCache := resultcache.NewMemory(resultcache.WithTTL(cfg.ResultCacheTTL))
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return memoryCache
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory result cache", slog.String("error", err.Error()))
		return memoryCache
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory result cache", slog.String("error", err.Error()))
		return memoryCache
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return resultcache.NewRedis(client, cfg.ResultCacheTTL)
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	options := &slog.HandlerOptions{Level: parseLogLevel(levelRaw)}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
