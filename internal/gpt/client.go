// Package gpt talks to the OpenAI speech-to-text and chat completion endpoints.
package gpt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"
	"pitchcoach/pkg/resilience"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

const (
	DefaultChatModel       = "gpt-4"
	DefaultTranscribeModel = "whisper-1"
	DefaultTimeout         = 2 * time.Minute
)

// ErrEmptyChoices is returned when a completion carries no choices.
var ErrEmptyChoices = errors.New("completion response has no choices")

// Config configures a Client. APIKey is required.
type Config struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	TranscribeModel string
	Timeout         time.Duration
	HTTPClient      *http.Client
	Breaker         *resilience.CircuitBreaker
	Limiter         *resilience.RateLimiter
}

// Client is safe for concurrent use.
type Client struct {
	api             oai.Client
	chatModel       string
	transcribeModel string
	breaker         *resilience.CircuitBreaker
	limiter         *resilience.RateLimiter
}

// New builds a Client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gpt: api key must not be empty")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.TranscribeModel == "" {
		cfg.TranscribeModel = DefaultTranscribeModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// Attempts are counted by the caller, so the SDK must not retry on its own.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		api:             oai.NewClient(opts...),
		chatModel:       cfg.ChatModel,
		transcribeModel: cfg.TranscribeModel,
		breaker:         cfg.Breaker,
		limiter:         cfg.Limiter,
	}, nil
}

// Transcribe sends audio to the speech-to-text endpoint and returns its text.
func (c *Client) Transcribe(ctx context.Context, in model.Audio) (string, error) {
	audioModel := in.Model
	if audioModel == "" {
		audioModel = c.transcribeModel
	}
	filename := in.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}

	var text string
	err := c.guard(ctx, func() error {
		res, err := c.api.Audio.Transcriptions.New(ctx, oai.AudioTranscriptionNewParams{
			File:  oai.File(bytes.NewReader(in.Data), filename, contentType),
			Model: oai.AudioModel(audioModel),
		})
		if err != nil {
			return fmt.Errorf("failed to transcribe audio: %w", err)
		}
		text = res.Text
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Debug("Transcription received",
		zap.String("model", audioModel),
		zap.Int("audio_bytes", len(in.Data)),
		zap.Int("text_length", len(text)))

	return text, nil
}

// Complete sends prompt as a single user message and returns choices[0].message.content.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var content string
	err := c.guard(ctx, func() error {
		resp, err := c.api.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
			Model: shared.ChatModel(c.chatModel),
			Messages: []oai.ChatCompletionMessageParamUnion{
				oai.UserMessage(prompt),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return ErrEmptyChoices
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Debug("Completion received",
		zap.String("model", c.chatModel),
		zap.Int("content_length", len(content)))

	return content, nil
}

// guard applies the rate limiter and circuit breaker around one call.
func (c *Client) guard(ctx context.Context, fn func() error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to acquire rate limit token: %w", err)
	}
	err := c.breaker.Execute(fn)
	if err != nil && c.breaker != nil && c.breaker.GetState() == resilience.StateOpen {
		logger.Warn("OpenAI circuit breaker is open", zap.Error(err))
	}
	return err
}

// StatusCode extracts the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
