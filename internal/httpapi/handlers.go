package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"pitchcoach/internal/coach"
	"pitchcoach/internal/queue"
	"pitchcoach/internal/storage"
	"pitchcoach/pkg/cache"
	"pitchcoach/pkg/logger"
	"pitchcoach/pkg/model"
	"pitchcoach/pkg/textstats"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderEmail = "X-Forwarded-Email"
	HeaderUser  = "X-Forwarded-User"

	defaultListLimit = 20
	maxListLimit     = 100
)

type Users interface {
	UpsertUser(ctx context.Context, user *model.User) error
}

type Analyses interface {
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	GetAnalysisByID(ctx context.Context, id string) (*model.Analysis, error)
	ListAnalysesByUser(ctx context.Context, userID string, limit int) ([]*model.Analysis, error)
}

type AudioUploader interface {
	GenerateKey(id, extension string) string
	UploadFile(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

type Publisher interface {
	PublishJob(ctx context.Context, job *queue.AnalysisJob) error
}

type Invoker interface {
	Invoke(ctx context.Context, req coach.Request) (*coach.Result, error)
}

// Deps are the API's collaborators. Audio, Queue and Cache may be nil, in
// which case the asynchronous analysis routes are not registered.
type Deps struct {
	Users          Users
	Analyses       Analyses
	Audio          AudioUploader
	Queue          Publisher
	Cache          cache.Cache
	Coach          Invoker
	MaxUploadBytes int64
	Checkers       []Checker
}

type API struct {
	users     Users
	analyses  Analyses
	audio     AudioUploader
	queue     Publisher
	cache     cache.Cache
	coach     Invoker
	maxUpload int64
}

// NewHandler builds the routed handler with access logging.
func NewHandler(deps Deps) http.Handler {
	api := &API{
		users:     deps.Users,
		analyses:  deps.Analyses,
		audio:     deps.Audio,
		queue:     deps.Queue,
		cache:     deps.Cache,
		coach:     deps.Coach,
		maxUpload: deps.MaxUploadBytes,
	}
	if api.maxUpload <= 0 {
		api.maxUpload = 25 << 20
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /readyz", readyz(deps.Checkers))

	mux.Handle("POST /api/coach", api.withUser(api.handleCoach))
	mux.Handle("POST /api/words", api.withUser(api.handleWords))
	mux.Handle("GET /api/analyses", api.withUser(api.handleListAnalyses))
	mux.Handle("GET /api/analyses/{id}", api.withUser(api.handleGetAnalysis))
	if api.audio != nil && api.queue != nil {
		mux.Handle("POST /api/analyses", api.withUser(api.handleCreateAnalysis))
	}

	return accessLog(mux)
}

type userKey struct{}

func userFrom(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey{}).(*model.User)
	return u
}

// withUser upserts the proxy-authenticated user and rejects anonymous requests.
func (a *API) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderEmail)))
		if email == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		user := &model.User{Email: email}
		if name := strings.TrimSpace(r.Header.Get(HeaderUser)); name != "" {
			user.Name = &name
		}
		if err := a.users.UpsertUser(r.Context(), user); err != nil {
			logger.Error("Failed to upsert user", zap.String("email", email), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// handleCoach dispatches on the form field "type".
func (a *API) handleCoach(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	kind, err := coach.ParseKind(r.FormValue("type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request type")
		return
	}

	var req coach.Request
	switch kind {
	case coach.KindTranscribe:
		audio, err := formAudio(r, "file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid audio file")
			return
		}
		audio.Model = r.FormValue("model")
		req = coach.TranscribeRequest(audio)
	case coach.KindTips:
		req = coach.TipsRequest(r.FormValue("transcription"))
	case coach.KindOptimize:
		req = coach.OptimizeRequest(r.FormValue("transcription"), r.FormValue("tips"))
	case coach.KindScore:
		req = coach.ScoreRequest(r.FormValue("transcription"))
	}

	res, err := a.coach.Invoke(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}

	switch kind {
	case coach.KindTranscribe:
		writeJSON(w, http.StatusOK, map[string]string{"text": res.Transcript})
	case coach.KindTips:
		writeJSON(w, http.StatusOK, map[string]string{"tips": res.Tips})
	case coach.KindOptimize:
		writeJSON(w, http.StatusOK, map[string]string{"optimizedScript": res.Script})
	case coach.KindScore:
		writeJSON(w, http.StatusOK, map[string]*model.Score{"scores": res.Score})
	}
}

// formAudio reads an uploaded file. A missing field yields empty audio so the
// invoker reports it as absent input.
func formAudio(r *http.Request, field string) (model.Audio, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return model.Audio{}, nil
	}
	if err != nil {
		return model.Audio{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.Audio{}, fmt.Errorf("failed to read upload: %w", err)
	}

	return model.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}

type wordsRequest struct {
	Text string `json:"text"`
}

type wordsResponse struct {
	Words []textstats.WordFrequency `json:"words"`
	Top   []textstats.WordFrequency `json:"top"`
	Total int                       `json:"total"`
}

func (a *API) handleWords(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)

	var text string
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body wordsRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		text = body.Text
	} else {
		text = r.FormValue("text")
	}

	top := textstats.DefaultTopWords
	if v := r.URL.Query().Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid top parameter")
			return
		}
		top = n
	}

	words := textstats.Analyze(text)
	writeJSON(w, http.StatusOK, wordsResponse{
		Words: words,
		Top:   textstats.Top(words, top),
		Total: textstats.TotalWords(words),
	})
}

type createdResponse struct {
	ID     string               `json:"id"`
	Status model.AnalysisStatus `json:"status"`
}

func (a *API) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload)
	if err := r.ParseMultipartForm(a.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	audio, err := formAudio(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid audio file")
		return
	}
	if len(audio.Data) == 0 {
		writeError(w, http.StatusBadRequest, "missing audio")
		return
	}

	now := time.Now()
	analysis := &model.Analysis{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Status: model.AnalysisStatusQueued,
		Meta: model.JSONB{
			"source":    "http",
			"filename":  audio.Filename,
			"file_size": len(audio.Data),
			"mime_type": audio.ContentType,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	ext := strings.ToLower(path.Ext(audio.Filename))
	analysis.AudioKey = a.audio.GenerateKey(analysis.ID, ext)

	ctx := r.Context()
	if _, err := a.audio.UploadFile(ctx, analysis.AudioKey, bytes.NewReader(audio.Data), audio.ContentType); err != nil {
		logger.Error("Failed to upload recording", zap.String("analysis_id", analysis.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to store recording")
		return
	}
	if err := a.analyses.CreateAnalysis(ctx, analysis); err != nil {
		logger.Error("Failed to create analysis", zap.String("analysis_id", analysis.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to create analysis")
		return
	}

	err = a.queue.PublishJob(ctx, &queue.AnalysisJob{
		AnalysisID: analysis.ID,
		UserID:     user.ID,
		AudioKey:   analysis.AudioKey,
		MimeType:   audio.ContentType,
		Size:       int64(len(audio.Data)),
		CreatedAt:  now,
	})
	if err != nil {
		logger.Error("Failed to publish analysis job", zap.String("analysis_id", analysis.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to queue analysis")
		return
	}

	a.cacheAnalysis(ctx, analysis)

	logger.Info("Analysis queued", zap.String("analysis_id", analysis.ID), zap.String("user_id", user.ID))
	writeJSON(w, http.StatusAccepted, createdResponse{ID: analysis.ID, Status: analysis.Status})
}

func (a *API) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	analysis, err := a.lookupAnalysis(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		logger.Error("Failed to get analysis", zap.String("analysis_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	// Someone else's analysis is reported as missing.
	if !analysis.OwnedBy(user.ID) {
		writeError(w, http.StatusNotFound, "Analysis not found")
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

// lookupAnalysis reads through the cache.
func (a *API) lookupAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	if a.cache != nil {
		var cached model.Analysis
		err := a.cache.Get(ctx, cache.AnalysisCacheKey(id), &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Warn("Cache lookup failed", zap.String("analysis_id", id), zap.Error(err))
		}
	}

	analysis, err := a.analyses.GetAnalysisByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.cacheAnalysis(ctx, analysis)
	return analysis, nil
}

func (a *API) cacheAnalysis(ctx context.Context, analysis *model.Analysis) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Set(ctx, cache.AnalysisCacheKey(analysis.ID), analysis); err != nil {
		logger.Warn("Failed to cache analysis", zap.String("analysis_id", analysis.ID), zap.Error(err))
	}
}

func (a *API) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = min(n, maxListLimit)
	}

	analyses, err := a.analyses.ListAnalysesByUser(r.Context(), user.ID, limit)
	if err != nil {
		logger.Error("Failed to list analyses", zap.String("user_id", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if analyses == nil {
		analyses = []*model.Analysis{}
	}

	writeJSON(w, http.StatusOK, map[string][]*model.Analysis{"analyses": analyses})
}

type failureResponse struct {
	Error    string `json:"error"`
	Detail   string `json:"detail,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

// writeFailure maps invoker errors: missing input is the caller's fault,
// anything else means the upstream model could not deliver.
func writeFailure(w http.ResponseWriter, err error) {
	var failure *coach.TerminalFailure
	if !errors.As(err, &failure) {
		logger.Error("Unexpected coach error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if errors.Is(failure, coach.ErrInputAbsent) {
		writeError(w, http.StatusBadRequest, failure.Reason)
		return
	}

	writeJSON(w, http.StatusBadGateway, failureResponse{
		Error:    failure.UserMessage(),
		Detail:   failure.Reason,
		Attempts: failure.Attempts,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
