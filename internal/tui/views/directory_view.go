package views

import (
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// DirectoryView is the picker for starting a conversation: a search input
// over the list of known users.
type DirectoryView struct {
	*tview.Flex
	theme    *ui.Theme
	input    *tview.InputField
	results  *tview.Table
	entries  []model.DirectoryEntry
	shown    []model.DirectoryEntry
	health   chat.StreamHealth
	onSelect func(model.DirectoryEntry)
	now      func() time.Time
}

// NewDirectoryView creates a new directory picker.
func NewDirectoryView(theme *ui.Theme) *DirectoryView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true)
	results.SetBorderColor(theme.BorderColor)
	results.SetBackgroundColor(theme.BgColor)
	results.SetTitle(" People ")
	results.SetTitleColor(theme.TitleColor)
	results.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	dv := &DirectoryView{
		Flex:    flex,
		theme:   theme,
		input:   input,
		results: results,
		now:     time.Now,
	}

	input.SetChangedFunc(func(string) { dv.render() })
	results.SetSelectedFunc(func(row, _ int) {
		if e, ok := dv.entryAt(row); ok && dv.onSelect != nil {
			dv.onSelect(e)
		}
	})
	return dv
}

// Name implements ui.Component.
func (dv *DirectoryView) Name() string { return "New conversation" }

// SetOnSelect sets the callback when a user is picked.
func (dv *DirectoryView) SetOnSelect(fn func(model.DirectoryEntry)) {
	dv.onSelect = fn
}

// SetInputDone sets what Enter, Tab or Esc do in the search input.
func (dv *DirectoryView) SetInputDone(fn func(tcell.Key)) {
	dv.input.SetDoneFunc(fn)
}

// Update replaces the directory. The signed-in user is already excluded.
func (dv *DirectoryView) Update(entries []model.DirectoryEntry, health chat.StreamHealth) {
	dv.entries = entries
	dv.health = health
	dv.render()
}

// Reset clears the search term.
func (dv *DirectoryView) Reset() {
	dv.input.SetText("")
	dv.results.Select(1, 0)
}

func (dv *DirectoryView) render() {
	dv.results.Clear()
	for col, h := range []string{" ", " NAME", " EMAIL", " LAST SEEN"} {
		dv.results.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(dv.theme.TableHeaderFg).
			SetBackgroundColor(dv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(min(col, 1)))
	}

	dv.shown = chat.FilterDirectory(dv.entries, dv.input.GetText())
	now := dv.now()
	for i, e := range dv.shown {
		row := i + 1
		marker, seen := " ", formatLastSeen(e.LastSeen, now)
		if e.IsOnline {
			marker, seen = "●", "online"
		}
		dv.results.SetCell(row, 0, tview.NewTableCell(" "+marker).SetTextColor(dv.theme.OnlineColor))
		dv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(singleLine(e.Name()))).SetExpansion(1).SetTextColor(dv.theme.FgColor))
		dv.results.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(e.Email)).SetExpansion(1).SetTextColor(dv.theme.DimColor))
		dv.results.SetCell(row, 3, tview.NewTableCell(" "+seen+" ").SetTextColor(dv.theme.DimColor))
	}
	if len(dv.shown) == 0 {
		text := "No other users yet"
		switch {
		case dv.health.State == status.Degraded:
			text = "Failed to load users: " + dv.health.Err
		case dv.health.State != status.Live:
			text = "Loading..."
		case len(dv.entries) > 0:
			text = "Nobody matches the search"
		}
		dv.results.SetCell(1, 1, tview.NewTableCell(" "+text).SetSelectable(false).SetTextColor(dv.theme.DimColor))
	}
}

func (dv *DirectoryView) entryAt(row int) (model.DirectoryEntry, bool) {
	idx := row - 1
	if idx < 0 || idx >= len(dv.shown) {
		return model.DirectoryEntry{}, false
	}
	return dv.shown[idx], true
}

// Selected returns the highlighted user.
func (dv *DirectoryView) Selected() (model.DirectoryEntry, bool) {
	row, _ := dv.results.GetSelection()
	return dv.entryAt(row)
}

// Input returns the search input field.
func (dv *DirectoryView) Input() *tview.InputField {
	return dv.input
}

// Results returns the results table.
func (dv *DirectoryView) Results() *tview.Table {
	return dv.results
}
