package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"pitchcoach/internal/coach"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/cache"
	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

// ErrNoFinishedAnalysis is returned by /script before any recording was analysed.
var ErrNoFinishedAnalysis = errors.New("no finished analysis for this chat")

// ChatUserEmail is the synthetic identity used for Telegram chats.
func ChatUserEmail(chatID int64) string {
	return fmt.Sprintf("tg%d@telegram.local", chatID)
}

// recording is an incoming voice note or audio file.
type recording struct {
	ChatID    int64
	MessageID int64
	Sender    string
	MimeType  string
	Size      int64
	Duration  int
	Body      io.Reader
}

func (b *Bot) handleVoice(c tele.Context) error {
	msg := c.Message()
	if msg == nil || (msg.Voice == nil && msg.Audio == nil) {
		return c.Reply("No recording found in this message.")
	}

	ctx := context.Background()
	if !b.isActive(ctx, msg.Chat.ID) {
		logger.Info("Ignoring recording from inactive chat",
			zap.Int64("chat_id", msg.Chat.ID),
			zap.Int("message_id", msg.ID))
		return nil
	}

	rec := recording{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ID),
	}
	var file *tele.File
	if msg.Voice != nil {
		file = &msg.Voice.File
		rec.MimeType = msg.Voice.MIME
		rec.Duration = msg.Voice.Duration
	} else {
		file = &msg.Audio.File
		rec.MimeType = msg.Audio.MIME
		rec.Duration = msg.Audio.Duration
	}
	rec.Size = int64(file.FileSize)
	if msg.Sender != nil {
		rec.Sender = msg.Sender.FirstName
	}

	body, err := b.tb.File(file)
	if err != nil {
		logger.Error("Failed to download recording", zap.Error(err))
		return c.Reply("Could not download the recording, please try again.")
	}
	defer body.Close()
	rec.Body = body

	if _, err := b.submit(ctx, rec); err != nil {
		logger.Error("Failed to submit recording", zap.Int64("chat_id", rec.ChatID), zap.Error(err))
		return c.Reply("Could not queue the recording, please try again.")
	}

	return c.Reply("Got it! Analysing your pitch...")
}

// extensionFor picks the object key suffix. Voice notes are always OGG/Opus.
func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	default:
		return ".ogg"
	}
}

// submit stores the recording, records the analysis and queues it.
func (b *Bot) submit(ctx context.Context, rec recording) (*model.Analysis, error) {
	user := &model.User{Email: ChatUserEmail(rec.ChatID)}
	if rec.Sender != "" {
		user.Name = &rec.Sender
	}
	if err := b.storage.UpsertUser(ctx, user); err != nil {
		return nil, err
	}

	now := time.Now()
	chatID, messageID := rec.ChatID, rec.MessageID
	analysis := &model.Analysis{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ChatID:    &chatID,
		MessageID: &messageID,
		Status:    model.AnalysisStatusQueued,
		Meta: model.JSONB{
			"source":    "telegram",
			"duration":  rec.Duration,
			"file_size": rec.Size,
			"mime_type": rec.MimeType,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	analysis.AudioKey = b.audio.GenerateKey(analysis.ID, extensionFor(rec.MimeType))
	if _, err := b.audio.UploadFile(ctx, analysis.AudioKey, rec.Body, rec.MimeType); err != nil {
		return nil, err
	}

	if err := b.storage.CreateAnalysis(ctx, analysis); err != nil {
		return nil, err
	}

	logger.Info("Analysis created",
		zap.String("analysis_id", analysis.ID),
		zap.Int64("chat_id", chatID))

	err := b.q.PublishJob(ctx, &queue.AnalysisJob{
		AnalysisID: analysis.ID,
		UserID:     user.ID,
		ChatID:     chatID,
		MessageID:  messageID,
		AudioKey:   analysis.AudioKey,
		MimeType:   rec.MimeType,
		Size:       rec.Size,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Analysis job published", zap.String("analysis_id", analysis.ID))
	return analysis, nil
}

func (b *Bot) handleScript(c tele.Context) error {
	if err := c.Notify(tele.Typing); err != nil {
		logger.Debug("Failed to send typing action", zap.Error(err))
	}

	script, err := b.optimizedScript(context.Background(), c.Chat().ID)
	if errors.Is(err, ErrNoFinishedAnalysis) {
		return c.Send("Send a voice note first, then ask for the script.")
	}
	var failure *coach.TerminalFailure
	if errors.As(err, &failure) {
		return c.Send(failure.UserMessage())
	}
	if err != nil {
		logger.Error("Failed to produce script", zap.Error(err))
		return c.Send("Something went wrong, please try again.")
	}

	for _, part := range splitMessage(script, 4096) {
		if err := c.Send(part); err != nil {
			return err
		}
	}
	return nil
}

// optimizedScript returns the stored script of the chat's latest analysis,
// generating and saving it on first request.
func (b *Bot) optimizedScript(ctx context.Context, chatID int64) (string, error) {
	a, err := b.storage.GetLatestAnalysisByChat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoFinishedAnalysis
	}
	if err != nil {
		return "", err
	}
	if a.OptimizedScript != nil {
		return *a.OptimizedScript, nil
	}

	var transcript, tips string
	if a.Transcript != nil {
		transcript = *a.Transcript
	}
	if a.Tips != nil {
		tips = *a.Tips
	}

	res, err := b.coach.Invoke(ctx, coach.OptimizeRequest(transcript, tips))
	if err != nil {
		return "", err
	}

	a.OptimizedScript = &res.Script
	a.UpdatedAt = time.Now()
	if err := b.storage.UpdateAnalysis(ctx, a); err != nil {
		logger.Error("Failed to save optimized script", zap.String("analysis_id", a.ID), zap.Error(err))
	} else if err := b.cache.Set(ctx, cache.AnalysisCacheKey(a.ID), a); err != nil {
		logger.Warn("Failed to cache analysis", zap.String("analysis_id", a.ID), zap.Error(err))
	}

	return res.Script, nil
}

// splitMessage cuts s into chunks of at most limit runes, preferring line breaks.
func splitMessage(s string, limit int) []string {
	r := []rune(s)
	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}
