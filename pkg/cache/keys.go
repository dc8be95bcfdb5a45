package cache

import "strconv"

const (
	analysisPrefix   = "analysis"
	chatActivePrefix = "chat:active"
)

// AnalysisCacheKey holds the latest snapshot of an analysis.
func AnalysisCacheKey(analysisID string) string {
	return analysisPrefix + ":" + analysisID
}

// ChatActiveCacheKey marks a Telegram chat that has run /start.
func ChatActiveCacheKey(chatID int64) string {
	return chatActivePrefix + ":" + strconv.FormatInt(chatID, 10)
}
