package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"pitchcoach/internal/app"
	"pitchcoach/internal/config"
	"pitchcoach/internal/httpapi"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	resetDB := flag.Bool("reset-db", false, "Reset database by dropping all tables and re-running migrations")
	flag.Usage = func() {
		flag.PrintDefaults()
		os.Stderr.WriteString("\n" + config.Usage())
	}
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init("server", cfg.Log.Debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting pitchcoach API server")

	if cfg.Postgres.DSN == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	if *resetDB {
		if err := storage.ResetMigrations(cfg.Postgres.DSN); err != nil {
			logger.Fatal("Failed to reset database", zap.Error(err))
		}
		logger.Info("Database reset completed successfully")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgresStorage(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisCache, err := app.NewRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	s3Storage, err := app.NewS3(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
	}

	rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer rabbitMQ.Close()

	invoker, err := app.NewCoach(cfg, s3Storage)
	if err != nil {
		logger.Fatal("Failed to initialize coach", zap.Error(err))
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Users:          db,
		Analyses:       db,
		Audio:          s3Storage,
		Queue:          rabbitMQ,
		Cache:          redisCache,
		Coach:          invoker,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Checkers: []httpapi.Checker{
			{Name: "database", Check: db.Ping},
			{Name: "redis", Check: redisCache.Ping},
			{Name: "rabbitmq", Check: rabbitMQ.Ping},
		},
	})

	server := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Failed to shut down HTTP server", zap.Error(err))
	}

	logger.Info("API server shutdown complete")
}
