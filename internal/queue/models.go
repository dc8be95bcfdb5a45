package queue

import "time"

// AnalysisJob asks a worker to process one uploaded recording.
type AnalysisJob struct {
	AnalysisID string    `json:"analysis_id"`
	UserID     string    `json:"user_id"`
	ChatID     int64     `json:"chat_id,omitempty"`
	MessageID  int64     `json:"message_id,omitempty"`
	AudioKey   string    `json:"audio_key"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}
