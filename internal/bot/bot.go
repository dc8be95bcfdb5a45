package bot

import (
	"context"
	"fmt"
	"io"
	"time"

	"pitchcoach/internal/coach"
	"pitchcoach/internal/queue"
	"pitchcoach/pkg/cache"
	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"

	tele "gopkg.in/telebot.v4"

	"go.uber.org/zap"
)

// ChatActiveTTL is how long /start keeps a chat enabled.
const ChatActiveTTL = 30 * 24 * time.Hour

type QueuePublisher interface {
	PublishJob(ctx context.Context, job *queue.AnalysisJob) error
}

type Storage interface {
	UpsertUser(ctx context.Context, user *model.User) error
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	UpdateAnalysis(ctx context.Context, a *model.Analysis) error
	GetLatestAnalysisByChat(ctx context.Context, chatID int64) (*model.Analysis, error)
}

type AudioUploader interface {
	GenerateKey(id, extension string) string
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type Invoker interface {
	Invoke(ctx context.Context, req coach.Request) (*coach.Result, error)
}

// Deps are the collaborators the bot hands work to.
type Deps struct {
	Storage Storage
	Audio   AudioUploader
	Queue   QueuePublisher
	Cache   cache.Cache
	Coach   Invoker
}

type Bot struct {
	tb      *tele.Bot
	storage Storage
	audio   AudioUploader
	q       QueuePublisher
	cache   cache.Cache
	coach   Invoker
}

func NewBot(token string, deps Deps) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}

	tb, err := tele.NewBot(tele.Settings{
		Token: token,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Info("Bot created successfully", zap.String("username", tb.Me.Username))

	b := newBot(deps)
	b.tb = tb
	b.registerHandlers()
	return b, nil
}

func newBot(deps Deps) *Bot {
	return &Bot{
		storage: deps.Storage,
		audio:   deps.Audio,
		q:       deps.Queue,
		cache:   deps.Cache,
		coach:   deps.Coach,
	}
}

func (b *Bot) registerHandlers() {
	b.tb.Handle("/start", b.handleStart)
	b.tb.Handle("/stop", b.handleStop)
	b.tb.Handle("/script", b.handleScript)
	b.tb.Handle(tele.OnVoice, b.handleVoice)
	b.tb.Handle(tele.OnAudio, b.handleVoice)
}

func (b *Bot) handleStart(c tele.Context) error {
	chatID := c.Chat().ID
	if err := b.activate(context.Background(), chatID); err != nil {
		logger.Error("Failed to save chat active state to cache", zap.Error(err))
	}

	logger.Info("Bot activated for chat", zap.Int64("chat_id", chatID))

	return c.Send("Send me a voice note of your pitch and I'll score it, suggest improvements " +
		"and rewrite it as a three-minute script.\nSend /stop to pause.")
}

func (b *Bot) handleStop(c tele.Context) error {
	chatID := c.Chat().ID
	if err := b.cache.Delete(context.Background(), cache.ChatActiveCacheKey(chatID)); err != nil {
		logger.Error("Failed to delete chat active state from cache", zap.Error(err))
	}

	logger.Info("Bot deactivated for chat", zap.Int64("chat_id", chatID))

	return c.Send("Paused. Send /start to continue.")
}

func (b *Bot) activate(ctx context.Context, chatID int64) error {
	return b.cache.SetWithTTL(ctx, cache.ChatActiveCacheKey(chatID), "true", ChatActiveTTL)
}

func (b *Bot) isActive(ctx context.Context, chatID int64) bool {
	var value string
	if err := b.cache.Get(ctx, cache.ChatActiveCacheKey(chatID), &value); err != nil {
		return false
	}
	return value == "true"
}

// Start blocks polling for updates until Stop is called.
func (b *Bot) Start() {
	logger.Info("Bot started")
	b.tb.Start()
}

func (b *Bot) Stop() {
	b.tb.Stop()
	logger.Info("Bot stopped")
}
