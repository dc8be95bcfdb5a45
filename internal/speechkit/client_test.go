package speechkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"pitchcoach/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) GenerateKey(id, extension string) string {
	args := m.Called(id, extension)
	return args.String(0)
}

func (m *MockUploader) UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.Error(1)
}

func (m *MockUploader) DeleteFile(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func newTestClient(t *testing.T, handler http.Handler, uploader Uploader) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("sk-key", "folder-1", uploader)
	c.recognizeURL = srv.URL + "/recognize"
	c.operationURL = srv.URL + "/operations"
	c.pollInterval = time.Millisecond
	return c
}

func TestClient_Transcribe(t *testing.T) {
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Api-Key sk-key", r.Header.Get("Authorization"))
		assert.Equal(t, "folder-1", r.Header.Get("x-folder-id"))

		var req RecognitionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "OGG_OPUS", req.Config.Specification.AudioEncoding)
		assert.Equal(t, "https://s3/recordings/x.ogg", req.Audio.URI)

		json.NewEncoder(w).Encode(OperationResponse{ID: "op-1"})
	})
	mux.HandleFunc("/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 2 {
			json.NewEncoder(w).Encode(OperationResponse{ID: "op-1"})
			return
		}
		w.Write([]byte(`{"id":"op-1","done":true,"response":{"chunks":[
			{"alternatives":[{"text":"Hello investors.","confidence":0.9},{"text":"Hello in vestors"}]},
			{"alternatives":[{"text":"We build tools."}]}
		]}}`))
	})

	uploader := new(MockUploader)
	uploader.On("GenerateKey", mock.AnythingOfType("string"), ".ogg").Return("recordings/x.ogg")
	uploader.On("UploadFile", mock.Anything, "recordings/x.ogg", mock.Anything, "audio/ogg").Return("https://s3/recordings/x.ogg", nil)
	uploader.On("DeleteFile", mock.Anything, "recordings/x.ogg").Return(nil).Once()

	c := newTestClient(t, mux, uploader)
	text, err := c.Transcribe(context.Background(), model.Audio{
		Data:        []byte("OggS"),
		Filename:    "voice.oga",
		ContentType: "audio/ogg",
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello investors. We build tools.", text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&polls))
	uploader.AssertExpectations(t)
}

func TestClient_Transcribe_DeletesUploadOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
	}{
		{name: "deleted"},
		{name: "delete fails", deleteErr: errors.New("s3 down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/recognize", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":3,"message":"unsupported"}`))
			})

			uploader := new(MockUploader)
			uploader.On("GenerateKey", mock.Anything, ".mp3").Return("recordings/y.mp3")
			uploader.On("UploadFile", mock.Anything, "recordings/y.mp3", mock.Anything, "audio/mpeg").Return("https://s3/recordings/y.mp3", nil)
			uploader.On("DeleteFile", mock.Anything, "recordings/y.mp3").Return(tt.deleteErr).Once()

			c := newTestClient(t, mux, uploader)
			_, err := c.Transcribe(context.Background(), model.Audio{
				Data:        []byte("ID3"),
				Filename:    "pitch.mp3",
				ContentType: "audio/mpeg",
			})

			assert.Error(t, err)
			uploader.AssertExpectations(t)
		})
	}
}

func TestClient_Transcribe_UploadFailureSkipsDelete(t *testing.T) {
	uploader := new(MockUploader)
	uploader.On("GenerateKey", mock.Anything, ".ogg").Return("recordings/z.ogg")
	uploader.On("UploadFile", mock.Anything, "recordings/z.ogg", mock.Anything, mock.Anything).Return("", errors.New("s3 down"))

	c := newTestClient(t, http.NewServeMux(), uploader)
	_, err := c.Transcribe(context.Background(), model.Audio{Data: []byte("OggS"), ContentType: "audio/ogg"})

	assert.ErrorContains(t, err, "failed to upload audio")
	uploader.AssertNotCalled(t, "DeleteFile", mock.Anything, mock.Anything)
}

func TestClient_WaitForResult_OperationError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/operations/op-2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"op-2","done":true,"error":{"code":3,"message":"bad audio"}}`))
	})

	c := newTestClient(t, mux, new(MockUploader))
	_, err := c.WaitForResult(context.Background(), "op-2")

	assert.EqualError(t, err, "recognition failed: bad audio (code: 3)")
}

func TestClient_WaitForResult_ContextCancelled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/operations/op-3", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OperationResponse{ID: "op-3"})
	})

	c := newTestClient(t, mux, new(MockUploader))
	c.pollInterval = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.WaitForResult(ctx, "op-3")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAudioEncoding(t *testing.T) {
	tests := []struct {
		audio    model.Audio
		encoding string
		ext      string
	}{
		{model.Audio{ContentType: "audio/ogg; codecs=opus"}, "OGG_OPUS", ".ogg"},
		{model.Audio{Filename: "talk.MP3"}, "MP3", ".mp3"},
		{model.Audio{ContentType: "audio/wav"}, "LINEAR16_PCM", ".wav"},
		{model.Audio{}, "LINEAR16_PCM", ".wav"},
	}

	for _, tt := range tests {
		encoding, ext := audioEncoding(tt.audio)
		assert.Equal(t, tt.encoding, encoding)
		assert.Equal(t, tt.ext, ext)
	}
}

func TestRecognitionResult_GetFullText_Empty(t *testing.T) {
	r := &RecognitionResult{Chunks: []Chunk{{}, {Alternatives: []Alternative{{Text: "  "}}}}}
	assert.Equal(t, "", r.GetFullText())
}
