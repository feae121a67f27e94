package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// ConversationRow is one rendered line of the conversation list.
type ConversationRow struct {
	ID      string
	Name    string
	Preview string
	Time    string
	Unread  int
	Muted   bool
	Online  bool
}

// BuildConversationRows turns conversations into display rows for self.
func BuildConversationRows(self string, convs []model.Conversation, online map[string]bool, now time.Time) []ConversationRow {
	rows := make([]ConversationRow, 0, len(convs))
	for _, c := range convs {
		other := c.Other(self)
		preview := c.LastMessage
		switch {
		case preview == "" && c.LastMessageTime.IsZero():
			preview = "No messages yet"
		case c.LastMessageSender == self:
			preview = "You: " + preview
		}
		rows = append(rows, ConversationRow{
			ID:      c.ID,
			Name:    c.DisplayName(other),
			Preview: singleLine(preview),
			Time:    formatConversationTime(c.LastMessageTime, now),
			Unread:  c.UnreadCount[self],
			Muted:   c.MutedBy[self],
			Online:  online[other],
		})
	}
	return rows
}

// ConversationList is the table of active or archived conversations.
type ConversationList struct {
	*tview.Table
	theme    *ui.Theme
	self     string
	all      []model.Conversation
	rows     []ConversationRow
	online   map[string]bool
	archived bool
	filter   string
	health   chat.StreamHealth
	now      func() time.Time
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Name implements ui.Component.
func (cl *ConversationList) Name() string {
	if cl.archived {
		return "Archived"
	}
	return "Conversations"
}

// Update replaces the listed conversations. The selection follows the
// conversation it was on.
func (cl *ConversationList) Update(self string, convs []model.Conversation, online map[string]bool, health chat.StreamHealth) {
	cl.self = self
	cl.all = convs
	cl.online = online
	cl.health = health
	cl.render()
}

// SetArchived switches between active and archived conversations. The
// caller passes the matching list on the next Update.
func (cl *ConversationList) SetArchived(archived bool) {
	cl.archived = archived
	cl.Select(1, 0)
}

// Archived reports whether the archived list is shown.
func (cl *ConversationList) Archived() bool {
	return cl.archived
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = filter
	cl.render()
}

// Filter returns the active filter text.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

func (cl *ConversationList) render() {
	selected := cl.SelectedConversation()
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	visible := chat.FilterConversations(cl.self, cl.all, cl.filter)
	cl.rows = BuildConversationRows(cl.self, visible, cl.online, cl.now())
	for i, r := range cl.rows {
		row := i + 1
		marker := " "
		markerColor := cl.theme.FgColor
		if r.Online {
			marker, markerColor = "●", cl.theme.OnlineColor
		}
		name := r.Name
		if r.Muted {
			name += " [m]"
		}
		if r.Unread > 0 {
			name = fmt.Sprintf("(%d) %s", r.Unread, name)
		}
		style := cl.theme.FgColor
		if r.Unread > 0 && !r.Muted {
			style = cl.theme.CounterColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+marker).SetTextColor(markerColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(style))
		cl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(truncate(r.Preview, 60))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(r.Time+" ").SetTextColor(cl.theme.DimColor).SetAlign(tview.AlignRight))
		if r.ID == selected {
			cl.Select(row, 0)
		}
	}

	if len(cl.rows) == 0 {
		cl.SetCell(1, 1, tview.NewTableCell(" "+cl.emptyText()).
			SetSelectable(false).
			SetTextColor(cl.theme.DimColor))
	}
	cl.SetTitle(cl.title(len(visible)))
}

func (cl *ConversationList) emptyText() string {
	switch {
	case cl.health.State == status.Degraded:
		return "Failed to load conversations: " + cl.health.Err
	case cl.health.State != status.Live:
		return "Loading..."
	case cl.filter != "":
		return "No conversations match the filter"
	case cl.archived:
		return "No archived conversations"
	default:
		return "No conversations yet. Press n to start one"
	}
}

func (cl *ConversationList) title(visible int) string {
	if cl.filter != "" {
		return fmt.Sprintf(" %s (%d/%d) filter: %s ", cl.Name(), visible, len(cl.all), tview.Escape(cl.filter))
	}
	return fmt.Sprintf(" %s (%d) ", cl.Name(), len(cl.all))
}

// SelectedConversation returns the id of the highlighted conversation.
func (cl *ConversationList) SelectedConversation() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cl.rows) {
		return ""
	}
	return cl.rows[idx].ID
}

// Rows returns the rows currently shown.
func (cl *ConversationList) Rows() []ConversationRow {
	return cl.rows
}
