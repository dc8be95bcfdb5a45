package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"pitchcoach/internal/coach"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/cache"
	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"
	"pitchcoach/pkg/textstats"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AnalysisStore interface {
	GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error)
	UpdateAnalysis(ctx context.Context, a *model.Analysis) error
}

type AudioStore interface {
	DownloadFile(ctx context.Context, key string) ([]byte, error)
}

type Invoker interface {
	Invoke(ctx context.Context, req coach.Request) (*coach.Result, error)
}

// Notifier tells the owner of an analysis how it ended.
type Notifier interface {
	NotifyDone(ctx context.Context, a *model.Analysis) error
	NotifyFailed(ctx context.Context, a *model.Analysis) error
}

type Processor struct {
	db       AnalysisStore
	audio    AudioStore
	coach    Invoker
	cache    cache.Cache
	notifier Notifier
}

// NewProcessor wires the pipeline. cache and notifier may be nil.
func NewProcessor(db AnalysisStore, audio AudioStore, invoker Invoker, c cache.Cache, notifier Notifier) *Processor {
	return &Processor{
		db:       db,
		audio:    audio,
		coach:    invoker,
		cache:    c,
		notifier: notifier,
	}
}

// ProcessJob handles one queue message. A returned error requeues the job.
func (p *Processor) ProcessJob(ctx context.Context, body []byte) error {
	var job queue.AnalysisJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: malformed analysis job: %v", queue.ErrReject, err)
	}

	logger.Info("Processing analysis job",
		zap.String("analysis_id", job.AnalysisID),
		zap.String("user_id", job.UserID))

	analysis, err := p.db.GetAnalysisByID(ctx, job.AnalysisID)
	if errors.Is(err, storage.ErrNotFound) {
		logger.Warn("Analysis no longer exists", zap.String("analysis_id", job.AnalysisID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get analysis from db: %w", err)
	}

	if analysis.Status == model.AnalysisStatusDone ||
		(analysis.Status == model.AnalysisStatusFailed && !analysis.CanRetry()) {
		logger.Info("Analysis already finished", zap.String("analysis_id", analysis.ID),
			zap.String("status", string(analysis.Status)))
		return nil
	}

	analysis.SetInProgress()
	p.save(ctx, analysis)

	if err := p.run(ctx, analysis, job); err != nil {
		return p.handleFailure(ctx, analysis, err)
	}

	analysis.SetCompleted()
	if err := p.db.UpdateAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("failed to persist analysis: %w", err)
	}
	p.refreshCache(ctx, analysis)

	if p.notifier != nil {
		if err := p.notifier.NotifyDone(ctx, analysis); err != nil {
			logger.Error("Failed to notify user", zap.String("analysis_id", analysis.ID), zap.Error(err))
		}
	}

	logger.Info("Analysis completed", zap.String("analysis_id", analysis.ID))
	return nil
}

// run fills transcript, word counts, tips and score on a.
func (p *Processor) run(ctx context.Context, a *model.Analysis, job queue.AnalysisJob) error {
	data, err := p.audio.DownloadFile(ctx, a.AudioKey)
	if err != nil {
		return err
	}

	res, err := p.coach.Invoke(ctx, coach.TranscribeRequest(model.Audio{
		Data:        data,
		Filename:    path.Base(a.AudioKey),
		ContentType: job.MimeType,
	}))
	if err != nil {
		return err
	}
	transcript := res.Transcript
	a.Transcript = &transcript

	freq := textstats.Analyze(transcript)
	a.WordCounts = make([]model.WordCount, 0, len(freq))
	for _, wf := range freq {
		a.WordCounts = append(a.WordCounts, model.WordCount{Word: wf.Word, Count: wf.Count})
	}

	var (
		tips  *coach.Result
		score *coach.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tips, err = p.coach.Invoke(gctx, coach.TipsRequest(transcript))
		return err
	})
	g.Go(func() error {
		var err error
		score, err = p.coach.Invoke(gctx, coach.ScoreRequest(transcript))
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	a.Tips = &tips.Tips
	a.Score = score.Score
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, a *model.Analysis, cause error) error {
	msg := cause.Error()
	var failure *coach.TerminalFailure
	if errors.As(cause, &failure) {
		msg = failure.UserMessage()
	}

	logger.Error("Analysis processing error",
		zap.String("analysis_id", a.ID),
		zap.Int("attempt", a.Attempts+1),
		zap.Error(cause))

	a.SetError(msg)
	a.IncrementAttempts()
	p.save(ctx, a)

	if a.CanRetry() {
		return fmt.Errorf("analysis %s failed: %w", a.ID, cause)
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyFailed(ctx, a); err != nil {
			logger.Error("Failed to notify user", zap.String("analysis_id", a.ID), zap.Error(err))
		}
	}
	return nil
}

func (p *Processor) save(ctx context.Context, a *model.Analysis) {
	if err := p.db.UpdateAnalysis(ctx, a); err != nil {
		logger.Error("Failed to update analysis", zap.String("analysis_id", a.ID), zap.Error(err))
	}
	p.refreshCache(ctx, a)
}

func (p *Processor) refreshCache(ctx context.Context, a *model.Analysis) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, cache.AnalysisCacheKey(a.ID), a); err != nil {
		logger.Warn("Failed to cache analysis", zap.String("analysis_id", a.ID), zap.Error(err))
	}
}
