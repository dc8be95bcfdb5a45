package worker

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"pitchcoach/pkg/model"
	"pitchcoach/pkg/textstats"

	tele "gopkg.in/telebot.v4"
)

// telegramMessageLimit is the Bot API cap on message text length.
const telegramMessageLimit = 4096

// Sender is the part of *tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// TelegramNotifier replies in the chat a recording came from. Analyses
// submitted over HTTP have no chat and are skipped.
type TelegramNotifier struct {
	sender Sender
}

func NewTelegramNotifier(sender Sender) *TelegramNotifier {
	return &TelegramNotifier{sender: sender}
}

func (n *TelegramNotifier) NotifyDone(ctx context.Context, a *model.Analysis) error {
	return n.send(a, FormatReport(a))
}

func (n *TelegramNotifier) NotifyFailed(ctx context.Context, a *model.Analysis) error {
	reason := "unknown error"
	if a.ErrorText != nil {
		reason = *a.ErrorText
	}
	text := fmt.Sprintf("Could not analyse this recording after %d attempts. %s\nPlease record it again.",
		a.Attempts, reason)
	return n.send(a, text)
}

func (n *TelegramNotifier) send(a *model.Analysis, text string) error {
	if a.ChatID == nil {
		return nil
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if a.MessageID != nil {
		opts.ReplyTo = &tele.Message{ID: int(*a.MessageID)}
	}

	if _, err := n.sender.Send(&tele.Chat{ID: *a.ChatID}, truncate(text, telegramMessageLimit), opts); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

var (
	listItemTag = regexp.MustCompile(`(?i)<li[^>]*>`)
	anyTag      = regexp.MustCompile(`<[^>]+>`)
)

// TipsToText turns the tips list markup into plain bullet lines.
func TipsToText(tips string) string {
	s := listItemTag.ReplaceAllString(tips, "\n• ")
	s = anyTag.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// FormatReport renders a finished analysis as a plain-text chat message.
func FormatReport(a *model.Analysis) string {
	var b strings.Builder

	if s := a.Score; s != nil {
		fmt.Fprintf(&b, "Pitch score: %d/10\n", s.Overall)
		fmt.Fprintf(&b, "Clarity %d · Structure %d · Engagement %d · Conciseness %d\n",
			s.Clarity, s.Structure, s.Engagement, s.Conciseness)
		if s.Rationale != "" {
			b.WriteString(s.Rationale)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if a.Tips != nil {
		b.WriteString("Tips:\n")
		b.WriteString(TipsToText(*a.Tips))
		b.WriteString("\n\n")
	}

	if len(a.WordCounts) > 0 {
		n := textstats.DefaultTopWords
		if len(a.WordCounts) < n {
			n = len(a.WordCounts)
		}
		words := make([]string, 0, n)
		for _, wc := range a.WordCounts[:n] {
			words = append(words, fmt.Sprintf("%s (%d)", wc.Word, wc.Count))
		}
		fmt.Fprintf(&b, "Most used words: %s\n\n", strings.Join(words, ", "))
	}

	b.WriteString("Send /script for an optimized version of your pitch.")
	return b.String()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
