package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"pitchcoach/internal/app"
	"pitchcoach/internal/bot"
	"pitchcoach/internal/config"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init("bot", cfg.Log.Debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting pitchcoach bot service")

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

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	invoker, err := app.NewCoach(cfg, s3Storage)
	if err != nil {
		logger.Fatal("Failed to initialize coach", zap.Error(err))
	}

	botInstance, err := bot.NewBot(cfg.Telegram.Token, bot.Deps{
		Storage: db,
		Audio:   s3Storage,
		Queue:   rabbitMQ,
		Cache:   redisCache,
		Coach:   invoker,
	})
	if err != nil {
		logger.Fatal("Failed to initialize bot", zap.Error(err))
	}

	go botInstance.Start()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	botInstance.Stop()
	logger.Info("Bot service shutdown complete")
}
