package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// ProfileData is the header summary of the signed-in session.
type ProfileData struct {
	Session       string
	Name          string
	Email         string
	Conversations int
	Archived      int
	Unread        int
}

// ProfileInfo renders ProfileData in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile. A nil value shows the signed-out state.
func (p *ProfileInfo) Update(data *ProfileData) {
	p.Clear()
	fg := ColorTag(p.theme.FgColor)
	ct := ColorTag(p.theme.CounterColor)
	if data == nil {
		_, _ = fmt.Fprintf(p, "[%s::b]Signed out[-:-:-]", fg)
		return
	}

	email := data.Email
	if email == "" {
		email = "-"
	}
	_, _ = fmt.Fprintf(p,
		"[%s::b]Session:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Email:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d[-] (+%d archived)\n"+
			"[%s::b]Unread:[-:-:-]  [%s]%d[-]",
		fg, ct, tview.Escape(data.Session),
		fg, ct, tview.Escape(data.Name),
		fg, ct, tview.Escape(email),
		fg, ct, data.Conversations, data.Archived,
		fg, ct, data.Unread,
	)
}
