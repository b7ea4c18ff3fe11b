package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/chronicle/internal/archive"
	"github.com/robalyx/chronicle/internal/bot"
	"github.com/robalyx/chronicle/internal/cache"
	"github.com/robalyx/chronicle/internal/encryption"
	"github.com/robalyx/chronicle/internal/metrics"
	"github.com/robalyx/chronicle/internal/redis"
	"github.com/robalyx/chronicle/internal/relay"
	"github.com/robalyx/chronicle/internal/setup"
	"github.com/robalyx/chronicle/internal/setup/telemetry"
	"go.uber.org/zap"
)

const (
	// BotLogDir specifies where bot log files are stored.
	BotLogDir = "logs/bot_logs"

	// ExpiryCheckInterval is how often the buffer head is checked for age.
	ExpiryCheckInterval = time.Minute

	// ShutdownTimeout bounds the final flush on exit.
	ShutdownTimeout = 2 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize application with required dependencies
	app, err := setup.InitializeApp(ctx, telemetry.ServiceBot, BotLogDir)
	if err != nil {
		return err
	}
	defer app.Cleanup(context.Background())

	codec, err := encryption.NewCodec(app.Config.Common.Encryption.MasterKey)
	if err != nil {
		return err
	}

	mirrorClient, err := app.RedisManager.GetClient(redis.MessageCacheDBIndex)
	if err != nil {
		return err
	}

	// Build the message cache on top of the database and the Redis mirror
	cacheConfig := &app.Config.Bot.Cache
	opts := cache.OptionsFromConfig(cacheConfig)
	messages := app.DB.Service().Message()

	messageCache := cache.New(
		codec,
		messages,
		cache.NewRedisMirror(mirrorClient, app.Logger),
		cache.NewHTTPFetcher(cacheConfig.FetchTimeoutDuration(), int64(opts.MaxFileSize)),
		opts,
		app.Logger,
	)

	// Messages left in the mirror by a previous run go back into the buffer
	if _, err := messageCache.Recover(ctx); err != nil {
		app.Logger.Error("Failed to recover cached messages", zap.Error(err))
	}

	messageCache.StartExpiryCheck(ExpiryCheckInterval)

	discordBot, err := bot.New(
		app.Config.Bot.Discord.Token,
		archive.New(messageCache, messages, codec, app.Logger),
		relay.NewLogRelay(app.Logger),
		app.Config.Bot.RequestTimeoutDuration(),
		app.Logger,
	)
	if err != nil {
		shutdownCache(messageCache, app.Logger)
		return err
	}

	metricsServer, err := startMetrics(app, mirrorClient)
	if err != nil {
		shutdownCache(messageCache, app.Logger)
		return err
	}

	// Start the bot and connect to Discord
	if err := discordBot.Start(ctx); err != nil {
		shutdownCache(messageCache, app.Logger)
		return err
	}

	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	// Stop receiving events before the final flush
	discordBot.Close(shutdownCtx)
	shutdownCache(messageCache, app.Logger)

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Failed to shutdown metrics server", zap.Error(err))
		}
	}

	return nil
}

// shutdownCache flushes everything still buffered. Anything that fails to
// flush stays in the Redis mirror for the next start.
func shutdownCache(messageCache *cache.Cache, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := messageCache.Shutdown(ctx); err != nil {
		logger.Error("Failed to flush message cache on shutdown",
			zap.Int("remaining", messageCache.Len()),
			zap.Error(err))
	}
}

// startMetrics serves metrics and health checks when enabled.
func startMetrics(app *setup.App, redisClient rueidis.Client) (*metrics.Server, error) {
	cfg := app.Config.Common.Metrics
	if !cfg.Enabled {
		return nil, nil
	}

	server := metrics.NewServer(cfg.Address, map[string]metrics.HealthCheck{
		"postgres": func(ctx context.Context) error {
			return app.DB.DB().PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return redisClient.Do(ctx, redisClient.B().Ping().Build()).Error()
		},
	}, app.Logger)

	if err := server.Start(); err != nil {
		return nil, err
	}

	return server, nil
}
