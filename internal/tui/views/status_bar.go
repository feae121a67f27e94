package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// StatusBar displays the session, the signed-in user and the health of the
// three live streams.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	user    string
	streams []streamState
	now     func() time.Time
}

type streamState struct {
	name   string
	health chat.StreamHealth
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// Update sets the user and stream health from a view.
func (sb *StatusBar) Update(v chat.ViewModel) {
	sb.user = ""
	if v.Self != nil {
		sb.user = v.Self.Name()
	}
	sb.streams = []streamState{
		{"users", v.DirectoryStatus},
		{"chats", v.ConversationsStatus},
	}
	if v.ActiveConversationID != "" {
		sb.streams = append(sb.streams, streamState{"messages", v.MessagesStatus})
	}
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	user := "signed out"
	if sb.user != "" {
		user = tview.Escape(singleLine(sb.user))
	}
	parts := []string{
		fmt.Sprintf(" [::b]%s[-:-:-]", tview.Escape(sb.session)),
		user,
	}
	if sb.user != "" {
		streams := make([]string, 0, len(sb.streams))
		for _, s := range sb.streams {
			streams = append(streams, sb.stream(s))
		}
		parts = append(parts, strings.Join(streams, " "))
	}
	parts = append(parts, sb.now().Format("15:04"))
	return strings.Join(parts, " | ")
}

func (sb *StatusBar) stream(s streamState) string {
	switch s.health.State {
	case status.Live:
		return fmt.Sprintf("[%s]%s●[-]", ui.ColorTag(sb.theme.LiveColor), s.name)
	case status.Degraded:
		return fmt.Sprintf("[%s]%s✗[-]", ui.ColorTag(sb.theme.DegradedColor), s.name)
	default:
		return fmt.Sprintf("[%s]%s…[-]", ui.ColorTag(sb.theme.DimColor), s.name)
	}
}
