package coach

import (
	"context"
	"errors"
	"strings"

	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"
	"pitchcoach/pkg/resilience"

	"go.uber.org/zap"
)

// Transcriber turns a recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio model.Audio) (string, error)
}

// Completer sends a single prompt to a text-completion endpoint.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithPolicy sets the retry policy used by the text-generation actions.
func WithPolicy(p resilience.Policy) Option {
	return func(inv *Invoker) {
		inv.policy = p
	}
}

// Invoker dispatches requests to their action. It holds no per-request
// state and is safe for concurrent use.
type Invoker struct {
	transcriber Transcriber
	completer   Completer
	policy      resilience.Policy
}

func NewInvoker(t Transcriber, c Completer, opts ...Option) *Invoker {
	inv := &Invoker{
		transcriber: t,
		completer:   c,
		policy:      resilience.DefaultPolicy(),
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// action describes one external call: send issues the request, decode turns
// the raw reply into a payload and validate checks its shape.
type action[T any] struct {
	kind     Kind
	policy   resilience.Policy
	send     func(ctx context.Context) (string, error)
	decode   func(raw string) (T, error)
	validate func(T) error
}

// run executes a under its policy and converts exhaustion into a TerminalFailure.
func run[T any](ctx context.Context, a action[T]) (T, int, error) {
	log := logger.With(zap.String("action", string(a.kind)))

	attempts := 0
	payload, err := resilience.Retry(ctx, a.policy, func(ctx context.Context, attempt int) (T, error) {
		attempts = attempt
		var zero T

		raw, err := a.send(ctx)
		if err != nil {
			err = &TransportError{Err: err}
			log.Warn("Action attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return zero, err
		}

		payload, err := a.decode(raw)
		if err == nil && a.validate != nil {
			err = a.validate(payload)
		}
		if err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				err = &ValidationError{Reason: "undecodable payload", Err: err}
			}
			log.Warn("Action attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			return zero, err
		}

		return payload, nil
	})
	if err != nil {
		last := err
		var exhausted *resilience.ExhaustedError
		if errors.As(err, &exhausted) && exhausted.Last != nil {
			last = exhausted.Last
		}
		failure := &TerminalFailure{
			Kind:     a.kind,
			Attempts: attempts,
			Reason:   last.Error(),
			Err:      last,
		}
		log.Error("Action failed", zap.Int("attempts", attempts), zap.Error(last))
		var zero T
		return zero, attempts, failure
	}

	log.Debug("Action succeeded", zap.Int("attempts", attempts))
	return payload, attempts, nil
}

// Invoke runs req and returns its validated payload. Any error is a *TerminalFailure.
func (inv *Invoker) Invoke(ctx context.Context, req Request) (*Result, error) {
	switch req.Kind {
	case KindTranscribe:
		return inv.transcribe(ctx, req)
	case KindTips:
		return inv.tips(ctx, req)
	case KindOptimize:
		return inv.optimize(ctx, req)
	case KindScore:
		return inv.score(ctx, req)
	default:
		return nil, &TerminalFailure{
			Kind:   req.Kind,
			Reason: "invalid request type",
			Err:    errors.New("invalid request type"),
		}
	}
}

func (inv *Invoker) transcribe(ctx context.Context, req Request) (*Result, error) {
	if len(req.Audio.Data) == 0 {
		return nil, inputAbsent(KindTranscribe, "audio")
	}

	text, attempts, err := run(ctx, action[string]{
		kind:   KindTranscribe,
		policy: resilience.Once(),
		send: func(ctx context.Context) (string, error) {
			return inv.transcriber.Transcribe(ctx, req.Audio)
		},
		decode: decodeTranscript,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindTranscribe, Transcript: text, Attempts: attempts}, nil
}

func (inv *Invoker) tips(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, inputAbsent(KindTips, "transcription")
	}

	prompt := tipsPrompt(req.Transcript)
	tips, attempts, err := run(ctx, action[string]{
		kind:     KindTips,
		policy:   inv.policy,
		send:     inv.complete(prompt),
		decode:   decodeText,
		validate: validateTips,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindTips, Tips: tips, Attempts: attempts}, nil
}

func (inv *Invoker) optimize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, inputAbsent(KindOptimize, "transcription")
	}
	if strings.TrimSpace(req.Tips) == "" {
		return nil, inputAbsent(KindOptimize, "tips")
	}

	prompt := optimizePrompt(req.Transcript, req.Tips)
	script, attempts, err := run(ctx, action[string]{
		kind:     KindOptimize,
		policy:   inv.policy,
		send:     inv.complete(prompt),
		decode:   decodeText,
		validate: validateScript,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindOptimize, Script: script, Attempts: attempts}, nil
}

func (inv *Invoker) score(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return nil, inputAbsent(KindScore, "transcription")
	}

	prompt := scorePrompt(req.Transcript)
	score, attempts, err := run(ctx, action[*model.Score]{
		kind:     KindScore,
		policy:   inv.policy,
		send:     inv.complete(prompt),
		decode:   decodeScore,
		validate: validateScore,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Kind: KindScore, Score: score, Attempts: attempts}, nil
}

func (inv *Invoker) complete(prompt string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return inv.completer.Complete(ctx, prompt)
	}
}
