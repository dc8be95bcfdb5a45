package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"pitchcoach/internal/app"
	"pitchcoach/internal/config"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/internal/worker"
	"pitchcoach/pkg/logger"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init("worker", cfg.Log.Debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting pitchcoach worker service")

	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	s3Storage, err := app.NewS3(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
	}

	redisCache, err := app.NewRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	invoker, err := app.NewCoach(cfg, s3Storage)
	if err != nil {
		logger.Fatal("Failed to initialize coach", zap.Error(err))
	}

	// Without a bot token, results are only stored.
	var notifier worker.Notifier
	if cfg.Telegram.Token != "" {
		tb, err := tele.NewBot(tele.Settings{Token: cfg.Telegram.Token, Offline: true})
		if err != nil {
			logger.Fatal("Failed to create Telegram client", zap.Error(err))
		}
		notifier = worker.NewTelegramNotifier(tb)
		logger.Info("Telegram notifications enabled")
	}

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	processor := worker.NewProcessor(db, s3Storage, invoker, redisCache, notifier)

	if err := rabbitMQ.Consume(ctx, queue.QueueNameAnalysis, processor.ProcessJob); err != nil {
		logger.Error("Failed to consume messages", zap.Error(err))
	}

	logger.Info("Worker service shutdown complete")
}
