package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pitchcoach/internal/coach"
	"pitchcoach/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, req coach.Request) (*coach.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coach.Result), args.Error(1)
}

func withInvoker(t *testing.T, inv Invoker) {
	t.Helper()
	orig := newInvoker
	newInvoker = func(context.Context, string) (Invoker, error) { return inv, nil }
	t.Cleanup(func() { newInvoker = orig })
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestWords_Stdin(t *testing.T) {
	out, _, err := execute(t, "Hello, hello world! The world is big; hello.", "words")

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, []string{"hello", "3"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"world", "2"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"total", "8"}, strings.Fields(lines[4]))
}

func TestWords_FileAndTop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(path, []byte("b a b c"), 0o600))

	out, _, err := execute(t, "", "words", "--top", "1", path)

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"b", "2"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"total", "4"}, strings.Fields(lines[1]))
}

func TestWords_MissingFile(t *testing.T) {
	_, _, err := execute(t, "", "words", filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestTips(t *testing.T) {
	inv := new(MockInvoker)
	withInvoker(t, inv)
	inv.On("Invoke", mock.Anything, coach.TipsRequest("we build tools")).
		Return(&coach.Result{Kind: coach.KindTips, Tips: "<ul><li>Slow down</li></ul>"}, nil)

	out, _, err := execute(t, "we build tools", "tips")

	require.NoError(t, err)
	assert.Equal(t, "<ul><li>Slow down</li></ul>\n", out)
	inv.AssertExpectations(t)
}

func TestOptimize_ReadsTipsFile(t *testing.T) {
	inv := new(MockInvoker)
	withInvoker(t, inv)
	tipsPath := filepath.Join(t.TempDir(), "tips.html")
	require.NoError(t, os.WriteFile(tipsPath, []byte("<ul><li>Be brief</li></ul>"), 0o600))

	inv.On("Invoke", mock.Anything, coach.OptimizeRequest("long pitch", "<ul><li>Be brief</li></ul>")).
		Return(&coach.Result{Kind: coach.KindOptimize, Script: "Short pitch."}, nil)

	out, _, err := execute(t, "long pitch", "optimize", "--tips", tipsPath)

	require.NoError(t, err)
	assert.Equal(t, "Short pitch.\n", out)
}

func TestScore_PrintsJSON(t *testing.T) {
	inv := new(MockInvoker)
	withInvoker(t, inv)
	inv.On("Invoke", mock.Anything, coach.ScoreRequest("pitch")).
		Return(&coach.Result{Kind: coach.KindScore, Score: &model.Score{Overall: 7, Rationale: "solid"}}, nil)

	out, _, err := execute(t, "pitch", "score")

	require.NoError(t, err)
	assert.Contains(t, out, `"overall": 7`)
	assert.Contains(t, out, `"rationale": "solid"`)
}

func TestTranscribe_DetectsContentType(t *testing.T) {
	inv := new(MockInvoker)
	withInvoker(t, inv)
	path := filepath.Join(t.TempDir(), "pitch.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3"), 0o600))

	inv.On("Invoke", mock.Anything, mock.MatchedBy(func(req coach.Request) bool {
		return req.Kind == coach.KindTranscribe &&
			req.Audio.Filename == "pitch.mp3" &&
			req.Audio.ContentType == "audio/mpeg" &&
			string(req.Audio.Data) == "ID3"
	})).Return(&coach.Result{Kind: coach.KindTranscribe, Transcript: "hello"}, nil)

	out, _, err := execute(t, "", "transcribe", path)

	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestTerminalFailure_FailsCommand(t *testing.T) {
	inv := new(MockInvoker)
	withInvoker(t, inv)
	inv.On("Invoke", mock.Anything, mock.Anything).
		Return(nil, &coach.TerminalFailure{Kind: coach.KindTips, Attempts: 3, Reason: "empty completion"})

	_, errOut, err := execute(t, "pitch", "tips")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")
	assert.NotEmpty(t, errOut)
}

func TestWords_TopZeroShowsAll(t *testing.T) {
	out, _, err := execute(t, "a b c d e f", "words", "-n", "0")

	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 7)
}
