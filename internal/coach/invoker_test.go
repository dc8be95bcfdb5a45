package coach

import (
	"context"
	"errors"
	"testing"
	"time"

	"pitchcoach/pkg/model"
	"pitchcoach/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio model.Audio) (string, error) {
	args := m.Called(ctx, audio)
	return args.String(0), args.Error(1)
}

type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func newTestInvoker(t *MockTranscriber, c *MockCompleter) *Invoker {
	return NewInvoker(t, c, WithPolicy(resilience.Policy{MaxAttempts: MaxAttempts}))
}

const transcript = "Our product saves teams ten hours a week."

func TestInvoke_TipsExhaustsAttempts(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("Here are some tips: be clearer.", nil)

	inv := newTestInvoker(new(MockTranscriber), completer)
	res, err := inv.Invoke(context.Background(), TipsRequest(transcript))

	assert.Nil(t, res)
	var failure *TerminalFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindTips, failure.Kind)
	assert.Equal(t, MaxAttempts, failure.Attempts)
	assert.Contains(t, failure.Reason, "list tag")

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	completer.AssertNumberOfCalls(t, "Complete", MaxAttempts)
}

func TestInvoke_TipsEarlySuccess(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("not a list", nil).Once()
	completer.On("Complete", mock.Anything, mock.Anything).Return("```html\n<ul><li>Slow down</li></ul>\n```", nil).Once()

	inv := newTestInvoker(new(MockTranscriber), completer)
	res, err := inv.Invoke(context.Background(), TipsRequest(transcript))

	require.NoError(t, err)
	assert.Equal(t, KindTips, res.Kind)
	assert.Equal(t, "<ul><li>Slow down</li></ul>", res.Tips)
	assert.Equal(t, 2, res.Attempts)
	completer.AssertNumberOfCalls(t, "Complete", 2)
}

func TestInvoke_TipsTransportErrorIsRetried(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()
	completer.On("Complete", mock.Anything, mock.Anything).Return("<ol><li>Open with a story</li></ol>", nil).Once()

	inv := newTestInvoker(new(MockTranscriber), completer)
	res, err := inv.Invoke(context.Background(), TipsRequest(transcript))

	require.NoError(t, err)
	assert.Equal(t, "<ol><li>Open with a story</li></ol>", res.Tips)
	completer.AssertNumberOfCalls(t, "Complete", 2)
}

func TestInvoke_TipsPromptCarriesTranscript(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, transcript) && assert.Contains(t, p, "<ul>")
	})).Return("<ul><li>ok</li></ul>", nil)

	inv := newTestInvoker(new(MockTranscriber), completer)
	_, err := inv.Invoke(context.Background(), TipsRequest(transcript))

	require.NoError(t, err)
	completer.AssertExpectations(t)
}

func TestInvoke_TranscribeSingleAttempt(t *testing.T) {
	transcriber := new(MockTranscriber)
	completer := new(MockCompleter)
	audio := model.Audio{Data: []byte("RIFF"), Filename: "pitch.wav"}
	transcriber.On("Transcribe", mock.Anything, audio).Return("", errors.New("503 service unavailable"))

	inv := newTestInvoker(transcriber, completer)
	res, err := inv.Invoke(context.Background(), TranscribeRequest(audio))

	assert.Nil(t, res)
	var failure *TerminalFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, KindTranscribe, failure.Kind)
	assert.Equal(t, 1, failure.Attempts)

	var terr *TransportError
	assert.ErrorAs(t, err, &terr)
	transcriber.AssertNumberOfCalls(t, "Transcribe", 1)
	completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestInvoke_TranscribeSuccess(t *testing.T) {
	transcriber := new(MockTranscriber)
	audio := model.Audio{Data: []byte("RIFF")}
	transcriber.On("Transcribe", mock.Anything, audio).Return("hello world", nil)

	inv := newTestInvoker(transcriber, new(MockCompleter))
	res, err := inv.Invoke(context.Background(), TranscribeRequest(audio))

	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Transcript)
	assert.Equal(t, 1, res.Attempts)
}

func TestInvoke_Optimize(t *testing.T) {
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).Return("   ", nil).Once()
	completer.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "<ul><li>Slow down</li></ul>")
	})).Return("Good morning. Today I will show you...", nil).Once()

	inv := newTestInvoker(new(MockTranscriber), completer)
	res, err := inv.Invoke(context.Background(), OptimizeRequest(transcript, "<ul><li>Slow down</li></ul>"))

	require.NoError(t, err)
	assert.Equal(t, "Good morning. Today I will show you...", res.Script)
	assert.Equal(t, 2, res.Attempts)
}

func TestInvoke_Score(t *testing.T) {
	tests := []struct {
		name      string
		replies   []string
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "valid on first attempt",
			replies:   []string{`{"clarity":7,"structure":6,"engagement":8,"conciseness":5,"overall":7,"rationale":"Solid hook."}`},
			wantCalls: 1,
		},
		{
			name: "fenced json after out of range",
			replies: []string{
				`{"clarity":11,"structure":6,"engagement":8,"conciseness":5,"overall":7,"rationale":"x"}`,
				"```json\n{\"clarity\":7,\"structure\":6,\"engagement\":8,\"conciseness\":5,\"overall\":7,\"rationale\":\"Solid hook.\"}\n```",
			},
			wantCalls: 2,
		},
		{
			name:      "never valid",
			replies:   []string{"I'd rate it a seven.", `{"clarity":7}`, `{"clarity":7,"structure":6,"engagement":8,"conciseness":5,"overall":7,"rationale":""}`},
			wantCalls: 3,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := new(MockCompleter)
			for _, r := range tt.replies {
				completer.On("Complete", mock.Anything, mock.Anything).Return(r, nil).Once()
			}

			inv := newTestInvoker(new(MockTranscriber), completer)
			res, err := inv.Invoke(context.Background(), ScoreRequest(transcript))

			completer.AssertNumberOfCalls(t, "Complete", tt.wantCalls)
			if tt.wantErr {
				var failure *TerminalFailure
				assert.ErrorAs(t, err, &failure)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, &model.Score{
				Clarity: 7, Structure: 6, Engagement: 8, Conciseness: 5, Overall: 7,
				Rationale: "Solid hook.",
			}, res.Score)
		})
	}
}

func TestInvoke_InputAbsent(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		reason string
	}{
		{"transcribe without audio", TranscribeRequest(model.Audio{}), "missing audio"},
		{"tips without transcript", TipsRequest("  "), "missing transcription"},
		{"optimize without tips", OptimizeRequest(transcript, ""), "missing tips"},
		{"optimize without transcript", OptimizeRequest("", "<ul></ul>"), "missing transcription"},
		{"score without transcript", ScoreRequest(""), "missing transcription"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcriber := new(MockTranscriber)
			completer := new(MockCompleter)

			inv := newTestInvoker(transcriber, completer)
			res, err := inv.Invoke(context.Background(), tt.req)

			assert.Nil(t, res)
			var failure *TerminalFailure
			require.ErrorAs(t, err, &failure)
			assert.ErrorIs(t, err, ErrInputAbsent)
			assert.Equal(t, 0, failure.Attempts)
			assert.Equal(t, tt.reason, failure.UserMessage())
			transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
			completer.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
		})
	}
}

func TestInvoke_UnknownKind(t *testing.T) {
	inv := newTestInvoker(new(MockTranscriber), new(MockCompleter))
	_, err := inv.Invoke(context.Background(), Request{Kind: "summarize"})

	var failure *TerminalFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "invalid request type", failure.Reason)
}

func TestInvoke_CancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	completer := new(MockCompleter)
	completer.On("Complete", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled)

	inv := NewInvoker(new(MockTranscriber), completer, WithPolicy(resilience.Policy{
		MaxAttempts:     MaxAttempts,
		InitialInterval: time.Second,
	}))
	_, err := inv.Invoke(ctx, TipsRequest(transcript))

	var failure *TerminalFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, context.Canceled)
	completer.AssertNumberOfCalls(t, "Complete", 1)
}

func TestTerminalFailure_UserMessage(t *testing.T) {
	f := &TerminalFailure{Kind: KindTips, Attempts: 3, Reason: "invalid response: empty tips"}
	assert.Equal(t, "There was an error getting presentation tips.", f.UserMessage())
	assert.Equal(t, "tips failed after 3 attempt(s): invalid response: empty tips", f.Error())
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"transcribe", "tips", "optimize", "score"} {
		k, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, Kind(s), k)
	}

	_, err := ParseKind("summarize")
	assert.Error(t, err)
}
