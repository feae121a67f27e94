package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// Composer is the text input for sending messages. In reply mode it carries
// the message being answered until the text is sent or the reply cancelled.
type Composer struct {
	*tview.InputField
	theme   *ui.Theme
	replyTo *model.Message
	onSend  func(text string, replyTo *model.Message)
	onLeave func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitleColor(theme.TitleColor)

	c := &Composer{InputField: input, theme: theme}
	c.refresh()

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := c.GetText()
			if text == "" || c.onSend == nil {
				return
			}
			c.onSend(text, c.replyTo)
		case tcell.KeyEscape:
			if c.replyTo != nil {
				c.CancelReply()
				return
			}
			if c.onLeave != nil {
				c.onLeave()
			}
		}
	})
	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string, replyTo *model.Message)) {
	c.onSend = fn
}

// SetOnLeave sets the callback for Esc outside reply mode.
func (c *Composer) SetOnLeave(fn func()) {
	c.onLeave = fn
}

// ReplyTo enters reply mode for m.
func (c *Composer) ReplyTo(m model.Message) {
	cp := m.Clone()
	c.replyTo = &cp
	c.refresh()
}

// Replying returns the message being answered, or nil.
func (c *Composer) Replying() *model.Message {
	return c.replyTo
}

// CancelReply leaves reply mode and keeps the typed text.
func (c *Composer) CancelReply() {
	c.replyTo = nil
	c.refresh()
}

// Sent clears the input and the reply after a successful send.
func (c *Composer) Sent() {
	c.SetText("")
	c.replyTo = nil
	c.refresh()
}

// Reset clears everything, used when the conversation changes.
func (c *Composer) Reset() {
	c.Sent()
}

func (c *Composer) refresh() {
	if c.replyTo == nil {
		c.SetLabel(" > ")
		c.SetTitle(" Compose (i to focus) ")
		return
	}
	c.SetLabel(" ↩ ")
	c.SetTitle(fmt.Sprintf(" Reply to %s: %s (Esc cancels) ",
		tview.Escape(singleLine(c.replyTo.SenderName)),
		tview.Escape(truncate(singleLine(c.replyTo.Text), 40))))
}
