package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// MessageThread displays the messages of the active conversation above a
// composer. One message is under the cursor for reply and delete.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	view     *tview.TextView
	composer *Composer
	self     string
	conv     model.Conversation
	messages []model.Message
	cursor   string
	health   chat.StreamHealth
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true).
		SetWordWrap(true)
	view.SetBorder(true)
	view.SetBorderColor(theme.BorderColor)
	view.SetBackgroundColor(theme.BgColor)
	view.SetTextColor(theme.FgColor)
	view.SetTitle(" Messages ")
	view.SetTitleColor(theme.TitleColor)

	composer := NewComposer(theme)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(view, 0, 1, true).
		AddItem(composer, 3, 0, false)

	return &MessageThread{
		Flex:     flex,
		theme:    theme,
		view:     view,
		composer: composer,
		now:      time.Now,
	}
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string {
	if mt.conv.ID == "" {
		return "Messages"
	}
	return mt.conv.DisplayName(mt.conv.Other(mt.self))
}

// Update renders conv and its messages. Switching conversation resets the
// cursor and the composer.
func (mt *MessageThread) Update(self string, conv model.Conversation, msgs []model.Message, health chat.StreamHealth) {
	if conv.ID != mt.conv.ID {
		mt.cursor = ""
		mt.composer.Reset()
	}
	mt.self = self
	mt.conv = conv
	mt.messages = msgs
	mt.health = health
	if mt.cursor != "" && indexOf(msgs, mt.cursor) < 0 {
		mt.cursor = ""
	}
	mt.render()
}

// ConversationID returns the conversation shown.
func (mt *MessageThread) ConversationID() string {
	return mt.conv.ID
}

// MoveCursor moves the message cursor by delta, starting from the newest
// message when none is selected.
func (mt *MessageThread) MoveCursor(delta int) {
	if len(mt.messages) == 0 {
		return
	}
	i := indexOf(mt.messages, mt.cursor)
	if i < 0 {
		i = len(mt.messages)
	}
	i += delta
	if i < 0 {
		i = 0
	}
	if i >= len(mt.messages) {
		i = len(mt.messages) - 1
	}
	mt.cursor = mt.messages[i].ID
	mt.render()
}

// ClearCursor drops the selection and follows new messages again.
func (mt *MessageThread) ClearCursor() {
	mt.cursor = ""
	mt.render()
}

// Selected returns the message under the cursor.
func (mt *MessageThread) Selected() (model.Message, bool) {
	i := indexOf(mt.messages, mt.cursor)
	if i < 0 {
		return model.Message{}, false
	}
	return mt.messages[i], true
}

// Composer returns the composer input.
func (mt *MessageThread) Composer() *Composer {
	return mt.composer
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.view
}

func (mt *MessageThread) render() {
	mt.view.Clear()
	mt.view.SetTitle(mt.title())

	if len(mt.messages) == 0 {
		_, _ = fmt.Fprintf(mt.view, "\n  [%s]%s[-]", ui.ColorTag(mt.theme.DimColor), mt.emptyText())
		return
	}
	_, _ = fmt.Fprint(mt.view, RenderThread(mt.theme, mt.self, mt.conv, mt.messages, mt.now()))
	if mt.cursor == "" {
		mt.view.Highlight()
		mt.view.ScrollToEnd()
		return
	}
	mt.view.Highlight(mt.cursor)
	mt.view.ScrollToHighlight()
}

func (mt *MessageThread) emptyText() string {
	switch mt.health.State {
	case status.Degraded:
		return "Failed to load messages: " + mt.health.Err
	case status.Live:
		return "No messages yet. Say hello!"
	default:
		return "Loading..."
	}
}

func (mt *MessageThread) title() string {
	if mt.conv.ID == "" {
		return " Messages "
	}
	name := tview.Escape(singleLine(mt.Name()))
	var flags []string
	if mt.conv.MutedBy[mt.self] {
		flags = append(flags, "muted")
	}
	if mt.conv.ArchivedBy[mt.self] {
		flags = append(flags, "archived")
	}
	if len(flags) > 0 {
		return fmt.Sprintf(" %s (%s) ", name, strings.Join(flags, ", "))
	}
	return fmt.Sprintf(" %s ", name)
}

// RenderThread formats messages as tview markup with one region per message.
// Consecutive messages from one sender within five minutes share a header.
func RenderThread(theme *ui.Theme, self string, conv model.Conversation, msgs []model.Message, now time.Time) string {
	var b strings.Builder
	dim := ui.ColorTag(theme.DimColor)
	seenUntil := conv.ReadBy[conv.Other(self)]

	for i, m := range msgs {
		var prev *model.Message
		if i > 0 {
			prev = &msgs[i-1]
		}
		if showTimestamp(m, prev) || prev.SenderID != m.SenderID {
			if i > 0 {
				b.WriteString("\n")
			}
			sender, color := m.SenderName, theme.PeerColor
			if m.SenderID == self {
				sender, color = "You", theme.SelfColor
			}
			if sender == "" {
				sender = model.UnknownName
			}
			stamp := formatMessageTime(m.Timestamp, now)
			if !sameDay(m.Timestamp, now) {
				stamp += " " + m.Timestamp.Format("15:04")
			}
			fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [%s]%s[-]\n",
				ui.ColorTag(color), tview.Escape(singleLine(sender)), dim, stamp)
		}

		fmt.Fprintf(&b, "[\"%s\"]", m.ID)
		if m.IsDeleted {
			fmt.Fprintf(&b, "  [%s::i]%s[-:-:-]", dim, model.TombstoneText)
		} else {
			if r := m.ReplyTo; r != nil {
				fmt.Fprintf(&b, "  [%s]┃ %s: %s[-]\n", ui.ColorTag(theme.QuoteColor),
					tview.Escape(singleLine(replyName(r, self))),
					tview.Escape(truncate(singleLine(r.Text), 60)))
			}
			text := tview.Escape(sanitizeForTerminal(m.Text))
			b.WriteString("  " + strings.ReplaceAll(text, "\n", "\n  "))
		}
		if m.SenderID == self && !m.IsDeleted {
			glyph, color := statusGlyph(m.Status), theme.DimColor
			if !seenUntil.IsZero() && !seenUntil.Before(m.Timestamp) {
				glyph, color = statusGlyph(model.StatusRead), theme.ReadColor
			}
			if glyph != "" {
				fmt.Fprintf(&b, " [%s]%s[-]", ui.ColorTag(color), glyph)
			}
		}
		b.WriteString("[\"\"]\n")
	}
	return b.String()
}

func replyName(r *model.ReplyRef, self string) string {
	if r.SenderID == self {
		return "You"
	}
	if r.SenderName == "" {
		return model.UnknownName
	}
	return r.SenderName
}

func indexOf(msgs []model.Message, id string) int {
	if id == "" {
		return -1
	}
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
