package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
	now   func() time.Time
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
		now:      time.Now,
	}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Update renders conv from the point of view of self. peer is the other
// participant's directory entry when known.
func (ci *ConversationInfo) Update(self string, conv model.Conversation, peer *model.DirectoryEntry) {
	ci.Clear()
	if conv.ID == "" {
		return
	}

	fg := ui.ColorTag(ci.theme.FgColor)
	ct := ui.ColorTag(ci.theme.CounterColor)
	now := ci.now()
	other := conv.Other(self)

	email, seen := "-", "-"
	if peer != nil {
		if peer.Email != "" {
			email = peer.Email
		}
		seen = formatLastSeen(peer.LastSeen, now)
		if peer.IsOnline {
			seen = "online"
		}
	}
	lastActive := formatMessageTime(conv.LastMessageTime, now)
	if lastActive == "" {
		lastActive = "-"
	}
	readAt := formatMessageTime(conv.ReadBy[other], now)
	if readAt == "" {
		readAt = "never"
	}

	rows := []struct{ label, value string }{
		{"Name", conv.DisplayName(other)},
		{"Email", email},
		{"Last seen", seen},
		{"Unread", fmt.Sprint(conv.UnreadCount[self])},
		{"Muted", yesNo(conv.MutedBy[self])},
		{"Archived", yesNo(conv.ArchivedBy[self])},
		{"Last active", lastActive},
		{"Read by them", readAt},
		{"Started", formatMessageTime(conv.CreatedAt, now)},
		{"Conversation", conv.ID},
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r.label+":", ct, tview.Escape(singleLine(r.value)))
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(singleLine(conv.DisplayName(other)))))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
