package coach

import (
	"encoding/json"
	"fmt"
	"strings"

	"pitchcoach/pkg/model"
)

const (
	minScore = 1
	maxScore = 10

	previewRunes = 40
)

// stripCodeFence removes a surrounding ```lang ... ``` block that some models
// wrap their answer in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the info string (```html, ```json)
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimLeft(s, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	}
	// anything after the closing fence is chatter
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

func decodeTranscript(raw string) (string, error) {
	return raw, nil
}

func decodeText(raw string) (string, error) {
	return stripCodeFence(raw), nil
}

// validateTips accepts content that opens with a <ul> or <ol> tag.
func validateTips(tips string) error {
	if tips == "" {
		return &ValidationError{Reason: "empty tips"}
	}
	if !startsWithListTag(tips) {
		return &ValidationError{Reason: fmt.Sprintf("tips do not start with a list tag: %q", preview(tips, previewRunes))}
	}
	return nil
}

// preview returns at most n leading runes of s.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func startsWithListTag(s string) bool {
	lower := strings.ToLower(s)
	for _, tag := range []string{"<ul", "<ol"} {
		if !strings.HasPrefix(lower, tag) {
			continue
		}
		rest := lower[len(tag):]
		if rest == "" {
			return false
		}
		switch rest[0] {
		case '>', ' ', '\t', '\n', '\r':
			return true
		}
	}
	return false
}

func validateScript(script string) error {
	if strings.TrimSpace(script) == "" {
		return &ValidationError{Reason: "empty script"}
	}
	return nil
}

// scorePayload uses pointers so missing fields can be told apart from zero.
type scorePayload struct {
	Clarity     *int    `json:"clarity"`
	Structure   *int    `json:"structure"`
	Engagement  *int    `json:"engagement"`
	Conciseness *int    `json:"conciseness"`
	Overall     *int    `json:"overall"`
	Rationale   *string `json:"rationale"`
}

func decodeScore(raw string) (*model.Score, error) {
	var p scorePayload
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &p); err != nil {
		return nil, &ValidationError{Reason: "score is not a JSON object", Err: err}
	}

	fields := []struct {
		name  string
		value *int
	}{
		{"clarity", p.Clarity},
		{"structure", p.Structure},
		{"engagement", p.Engagement},
		{"conciseness", p.Conciseness},
		{"overall", p.Overall},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("score field %s is missing", f.name)}
		}
		if *f.value < minScore || *f.value > maxScore {
			return nil, &ValidationError{Reason: fmt.Sprintf("score field %s out of range: %d", f.name, *f.value)}
		}
	}
	if p.Rationale == nil {
		return nil, &ValidationError{Reason: "score field rationale is missing"}
	}

	return &model.Score{
		Clarity:     *p.Clarity,
		Structure:   *p.Structure,
		Engagement:  *p.Engagement,
		Conciseness: *p.Conciseness,
		Overall:     *p.Overall,
		Rationale:   strings.TrimSpace(*p.Rationale),
	}, nil
}

func validateScore(s *model.Score) error {
	if s == nil {
		return &ValidationError{Reason: "missing score"}
	}
	if s.Rationale == "" {
		return &ValidationError{Reason: "score rationale is empty"}
	}
	return nil
}
