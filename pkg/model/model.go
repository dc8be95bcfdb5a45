package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// MaxAnalysisAttempts bounds how often a failed analysis is reprocessed.
const MaxAnalysisAttempts = 3

// AnalysisStatus represents the status of an analysis
type AnalysisStatus string

const (
	AnalysisStatusQueued     AnalysisStatus = "queued"
	AnalysisStatusInProgress AnalysisStatus = "in_progress"
	AnalysisStatusDone       AnalysisStatus = "done"
	AnalysisStatusFailed     AnalysisStatus = "failed"
)

// JSONB represents a JSONB field for PostgreSQL
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// User is the thin record kept for every signed-in person.
type User struct {
	ID        string    `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      *string   `json:"name,omitempty" db:"name"`
	Image     *string   `json:"image,omitempty" db:"image"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WordCount mirrors textstats.WordFrequency for persistence.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Score is the structured pitch score stored with an analysis.
type Score struct {
	Clarity     int    `json:"clarity"`
	Structure   int    `json:"structure"`
	Engagement  int    `json:"engagement"`
	Conciseness int    `json:"conciseness"`
	Overall     int    `json:"overall"`
	Rationale   string `json:"rationale"`
}

// Analysis represents one recording's trip through the pipeline
type Analysis struct {
	ID              string         `json:"id" db:"id"`
	UserID          string         `json:"user_id" db:"user_id"`
	ChatID          *int64         `json:"chat_id,omitempty" db:"chat_id"`
	MessageID       *int64         `json:"message_id,omitempty" db:"message_id"`
	AudioKey        string         `json:"audio_key" db:"audio_key"`
	Status          AnalysisStatus `json:"status" db:"status"`
	Transcript      *string        `json:"transcript,omitempty" db:"transcript"`
	Tips            *string        `json:"tips,omitempty" db:"tips"`
	OptimizedScript *string        `json:"optimized_script,omitempty" db:"optimized_script"`
	Score           *Score         `json:"score,omitempty" db:"score"`
	WordCounts      []WordCount    `json:"word_counts,omitempty" db:"word_counts"`
	Attempts        int            `json:"attempts" db:"attempts"`
	ErrorText       *string        `json:"error_text,omitempty" db:"error_text"`
	Meta            JSONB          `json:"meta" db:"meta"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// IsCompleted returns true if the analysis is in a final state
func (a *Analysis) IsCompleted() bool {
	return a.Status == AnalysisStatusDone || a.Status == AnalysisStatusFailed
}

// CanRetry returns true if the analysis can be retried
func (a *Analysis) CanRetry() bool {
	return a.Status == AnalysisStatusFailed && a.Attempts < MaxAnalysisAttempts
}

// IncrementAttempts increases the attempt counter
func (a *Analysis) IncrementAttempts() {
	a.Attempts++
}

// SetError sets the analysis status to failed with error message
func (a *Analysis) SetError(errorText string) {
	a.Status = AnalysisStatusFailed
	a.ErrorText = &errorText
	a.UpdatedAt = time.Now()
}

// SetCompleted sets the analysis status to done
func (a *Analysis) SetCompleted() {
	a.Status = AnalysisStatusDone
	a.ErrorText = nil
	a.UpdatedAt = time.Now()
}

// SetInProgress marks the analysis as being processed
func (a *Analysis) SetInProgress() {
	a.Status = AnalysisStatusInProgress
	a.UpdatedAt = time.Now()
}

// OwnedBy reports whether the analysis belongs to the given user.
func (a *Analysis) OwnedBy(userID string) bool {
	return a.UserID == userID
}

// Audio is a recording handed to a speech-to-text backend.
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
	// Model overrides the backend's default transcription model when set.
	Model string
}
