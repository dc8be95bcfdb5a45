// Package coach runs the AI-backed presentation actions: transcription,
// improvement tips, an optimized script and a pitch score.
//
// Every action goes through one retry skeleton. A completion is only handed
// back once it passed the action's validator; otherwise the caller receives a
// *TerminalFailure after the attempt cap is spent.
package coach

import (
	"fmt"

	"pitchcoach/pkg/model"
)

// MaxAttempts is the attempt cap for text-generation actions.
const MaxAttempts = 3

// Kind names an action.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindTips       Kind = "tips"
	KindOptimize   Kind = "optimize"
	KindScore      Kind = "score"
)

// ParseKind maps the wire name of an action to its Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTranscribe, KindTips, KindOptimize, KindScore:
		return k, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Request is a tagged union; which fields matter depends on Kind.
type Request struct {
	Kind       Kind
	Audio      model.Audio
	Transcript string
	Tips       string
}

func TranscribeRequest(audio model.Audio) Request {
	return Request{Kind: KindTranscribe, Audio: audio}
}

func TipsRequest(transcript string) Request {
	return Request{Kind: KindTips, Transcript: transcript}
}

func OptimizeRequest(transcript, tips string) Request {
	return Request{Kind: KindOptimize, Transcript: transcript, Tips: tips}
}

func ScoreRequest(transcript string) Request {
	return Request{Kind: KindScore, Transcript: transcript}
}

// Result carries the payload of a successful action. Only the field that
// belongs to Kind is set.
type Result struct {
	Kind       Kind         `json:"kind"`
	Transcript string       `json:"transcript,omitempty"`
	Tips       string       `json:"tips,omitempty"`
	Script     string       `json:"script,omitempty"`
	Score      *model.Score `json:"score,omitempty"`
	Attempts   int          `json:"attempts"`
}
