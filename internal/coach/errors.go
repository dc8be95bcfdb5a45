package coach

import (
	"errors"
	"fmt"
)

// ErrInputAbsent marks a request that lacks a required field.
var ErrInputAbsent = errors.New("required input is missing")

// TransportError wraps a failure to reach the endpoint or a non-success reply.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports a reply whose payload has the wrong shape.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid response: %s: %v", e.Reason, e.Err)
	}
	return "invalid response: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// TerminalFailure is the only error Invoke returns. Reason is the message of
// the last failed attempt and is safe to show to users.
type TerminalFailure struct {
	Kind     Kind
	Attempts int
	Reason   string
	Err      error
}

func (f *TerminalFailure) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %s", f.Kind, f.Attempts, f.Reason)
}

func (f *TerminalFailure) Unwrap() error {
	return f.Err
}

// UserMessage is a short sentence suitable for an alert in the UI.
func (f *TerminalFailure) UserMessage() string {
	if errors.Is(f.Err, ErrInputAbsent) {
		return f.Reason
	}
	switch f.Kind {
	case KindTranscribe:
		return "There was an error transcribing the audio."
	case KindTips:
		return "There was an error getting presentation tips."
	case KindOptimize:
		return "There was an error generating the optimized script."
	case KindScore:
		return "There was an error scoring the presentation."
	default:
		return "The request could not be completed."
	}
}

func inputAbsent(kind Kind, field string) *TerminalFailure {
	return &TerminalFailure{
		Kind:   kind,
		Reason: fmt.Sprintf("missing %s", field),
		Err:    fmt.Errorf("%w: %s", ErrInputAbsent, field),
	}
}
