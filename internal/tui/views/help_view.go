package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// HelpEntry is one line of the help page.
type HelpEntry struct {
	Key         string
	Description string
}

// HelpSection groups help entries under a heading.
type HelpSection struct {
	Title   string
	Entries []HelpEntry
}

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme, sections []HelpSection) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprint(hv, RenderHelp(theme, sections))
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// RenderHelp formats sections with aligned key columns.
func RenderHelp(theme *ui.Theme, sections []HelpSection) string {
	kc := ui.ColorTag(theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range sections {
		width := 0
		for _, e := range s.Entries {
			width = max(width, len([]rune(e.Key)))
		}
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, e := range s.Entries {
			pad := strings.Repeat(" ", width-len([]rune(e.Key)))
			fmt.Fprintf(&b, "  [%s]%s[-]%s  %s\n", kc, tview.Escape(e.Key), pad, e.Description)
		}
	}
	return b.String()
}
