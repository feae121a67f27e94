package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

// timestampGap is the silence after which the thread shows a new time header.
const timestampGap = 5 * time.Minute

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func isYesterday(t, now time.Time) bool {
	return sameDay(t, now.AddDate(0, 0, -1))
}

// formatMessageTime formats a message time as "15:04" today, "Yesterday",
// or the full date.
func formatMessageTime(t, now time.Time) string {
	switch {
	case t.IsZero():
		return ""
	case sameDay(t, now):
		return t.Format("15:04")
	case isYesterday(t, now):
		return "Yesterday"
	default:
		return t.Format("01/02/2006")
	}
}

// formatConversationTime is the shorter variant used in the conversation list.
func formatConversationTime(t, now time.Time) string {
	switch {
	case t.IsZero():
		return ""
	case sameDay(t, now):
		return t.Format("15:04")
	case isYesterday(t, now):
		return "Yesterday"
	default:
		return t.Format("Jan 02")
	}
}

// formatLastSeen renders a relative "last seen" time.
func formatLastSeen(t, now time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// statusGlyph is the delivery mark shown next to one's own messages.
func statusGlyph(status string) string {
	switch status {
	case model.StatusSent:
		return "✓"
	case model.StatusDelivered, model.StatusRead:
		return "✓✓"
	default:
		return ""
	}
}

// showTimestamp reports whether cur starts a new time group after prev.
func showTimestamp(cur model.Message, prev *model.Message) bool {
	if prev == nil {
		return true
	}
	return cur.Timestamp.Sub(prev.Timestamp) > timestampGap
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
