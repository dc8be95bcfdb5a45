package speechkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RecognizeURL  = "https://transcribe.api.cloud.yandex.net/speech/stt/v2/longRunningRecognize"
	OperationURL  = "https://operation.api.cloud.yandex.net/operations"
	OperationPoll = 5 * time.Second
	MaxWaitTime   = 30 * time.Minute

	DefaultLanguage = "en-US"
)

// ErrNoSpeech is returned when recognition finishes without any text.
var ErrNoSpeech = errors.New("no speech recognized")

// Uploader stores audio where SpeechKit can read it. Uploaded copies are
// deleted once recognition ends.
type Uploader interface {
	GenerateKey(id, extension string) string
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

const cleanupTimeout = 10 * time.Second

type Client struct {
	apiKey   string
	folderID string
	language string
	uploader Uploader
	client   *http.Client

	recognizeURL string
	operationURL string
	pollInterval time.Duration
	maxWait      time.Duration
}

func NewClient(apiKey, folderID string, uploader Uploader) *Client {
	return &Client{
		apiKey:   apiKey,
		folderID: folderID,
		language: DefaultLanguage,
		uploader: uploader,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		recognizeURL: RecognizeURL,
		operationURL: OperationURL,
		pollInterval: OperationPoll,
		maxWait:      MaxWaitTime,
	}
}

// SetLanguage overrides the recognition language code (e.g. ru-RU).
func (c *Client) SetLanguage(code string) {
	if code != "" {
		c.language = code
	}
}

// Transcribe uploads the recording and waits for long-running recognition.
func (c *Client) Transcribe(ctx context.Context, audio model.Audio) (string, error) {
	encoding, ext := audioEncoding(audio)

	key := c.uploader.GenerateKey(uuid.New().String(), ext)
	uri, err := c.uploader.UploadFile(ctx, key, bytes.NewReader(audio.Data), audio.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}
	defer c.cleanup(ctx, key)

	operationID, err := c.StartRecognition(ctx, uri, encoding)
	if err != nil {
		return "", err
	}

	result, err := c.WaitForResult(ctx, operationID)
	if err != nil {
		return "", err
	}

	text := result.GetFullText()
	if text == "" {
		return "", ErrNoSpeech
	}
	return text, nil
}

// cleanup removes the uploaded copy even when ctx was cancelled.
func (c *Client) cleanup(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := c.uploader.DeleteFile(ctx, key); err != nil {
		logger.Warn("Failed to delete uploaded audio", zap.String("key", key), zap.Error(err))
	}
}

// audioEncoding maps the recording's type to a SpeechKit encoding and file extension.
func audioEncoding(audio model.Audio) (string, string) {
	ct := strings.ToLower(audio.ContentType)
	ext := strings.ToLower(path.Ext(audio.Filename))

	switch {
	case strings.Contains(ct, "ogg") || ext == ".ogg" || ext == ".oga" || ext == ".opus":
		return "OGG_OPUS", ".ogg"
	case strings.Contains(ct, "mpeg") || ext == ".mp3":
		return "MP3", ".mp3"
	default:
		return "LINEAR16_PCM", ".wav"
	}
}

// StartRecognition launches async recognition of the object at uri.
func (c *Client) StartRecognition(ctx context.Context, uri, encoding string) (string, error) {
	spec := Specification{
		LanguageCode:      c.language,
		Model:             "general",
		AudioEncoding:     encoding,
		AudioChannelCount: 1,
		LiteratureText:    true,
	}
	if encoding != "MP3" {
		spec.SampleRateHertz = 48000
	}

	body, err := json.Marshal(RecognitionRequest{
		Config: RecognitionConfig{Specification: spec},
		Audio:  AudioSource{URI: uri},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.recognizeURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-folder-id", c.folderID)

	logger.Debug("Starting speech recognition", zap.String("uri", uri))

	var op OperationResponse
	if err := c.do(req, &op); err != nil {
		return "", fmt.Errorf("recognition request failed: %w", err)
	}

	logger.Info("Recognition started", zap.String("operation_id", op.ID))
	return op.ID, nil
}

// WaitForResult polls the operation until it is done, ctx ends or the wait limit passes.
func (c *Client) WaitForResult(ctx context.Context, operationID string) (*RecognitionResult, error) {
	url := fmt.Sprintf("%s/%s", c.operationURL, operationID)
	startTime := time.Now()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if time.Since(startTime) > c.maxWait {
			return nil, fmt.Errorf("recognition timeout exceeded")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		var op OperationResponse
		if err := c.do(req, &op); err != nil {
			return nil, fmt.Errorf("operation check failed: %w", err)
		}

		if op.Done {
			if op.Error != nil {
				return nil, fmt.Errorf("recognition failed: %s (code: %d)", op.Error.Message, op.Error.Code)
			}

			result := &RecognitionResult{}
			if len(op.Response) > 0 {
				if err := json.Unmarshal(op.Response, result); err != nil {
					return nil, fmt.Errorf("failed to unmarshal result: %w", err)
				}
			}

			logger.Info("Recognition completed",
				zap.String("operation_id", operationID),
				zap.Int("chunks", len(result.Chunks)))
			return result, nil
		}

		logger.Debug("Recognition in progress",
			zap.String("operation_id", operationID),
			zap.Duration("elapsed", time.Since(startTime)))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, dest interface{}) error {
	req.Header.Set("Authorization", fmt.Sprintf("Api-Key %s", c.apiKey))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// GetFullText joins the best alternative of every chunk.
func (r *RecognitionResult) GetFullText() string {
	parts := make([]string, 0, len(r.Chunks))
	for _, chunk := range r.Chunks {
		if len(chunk.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(chunk.Alternatives[0].Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
