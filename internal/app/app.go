// Package app assembles the shared collaborators used by the binaries.
package app

import (
	"context"
	"fmt"

	"pitchcoach/internal/coach"
	"pitchcoach/internal/config"
	"pitchcoach/internal/gpt"
	"pitchcoach/internal/speechkit"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/cache"
	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/resilience"

	"go.uber.org/zap"
)

// NewCoach builds the action invoker. uploader is only needed by the
// speechkit provider and may be nil otherwise.
func NewCoach(cfg *config.Config, uploader speechkit.Uploader) (*coach.Invoker, error) {
	client, err := gpt.New(gpt.Config{
		APIKey:          cfg.OpenAI.APIKey,
		BaseURL:         cfg.OpenAI.BaseURL,
		ChatModel:       cfg.OpenAI.ChatModel,
		TranscribeModel: cfg.OpenAI.TranscribeModel,
		Timeout:         cfg.OpenAI.Timeout,
		Breaker:         resilience.NewCircuitBreaker(cfg.OpenAI.BreakerFailures, cfg.OpenAI.BreakerTimeout),
		Limiter:         resilience.NewRateLimiter(cfg.OpenAI.RateBurst, cfg.OpenAI.RateInterval),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	var transcriber coach.Transcriber = client
	if cfg.STT.Provider == "speechkit" {
		if uploader == nil {
			return nil, fmt.Errorf("speechkit provider requires object storage")
		}
		transcriber = speechkit.NewClient(cfg.SpeechKit.APIKey, cfg.SpeechKit.FolderID, uploader)
	}

	logger.Info("Coach initialized",
		zap.String("stt_provider", cfg.STT.Provider),
		zap.String("chat_model", cfg.OpenAI.ChatModel),
		zap.String("retry_backoff", cfg.Retry.Backoff))

	policy := cfg.RetryPolicy(coach.MaxAttempts)
	return coach.NewInvoker(transcriber, client, coach.WithPolicy(policy)), nil
}

// NewS3 opens object storage from the s3 config section.
func NewS3(ctx context.Context, cfg *config.Config) (*storage.S3Storage, error) {
	return storage.NewS3Storage(ctx, storage.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
	})
}

// NewRedis connects to the redis config section.
func NewRedis(cfg *config.Config) (*cache.RedisCache, error) {
	return cache.NewRedisCache(cache.Options{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		TTL:       cfg.Redis.TTL,
		Namespace: cfg.Redis.Prefix,
	})
}
