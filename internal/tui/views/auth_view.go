package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/tui/ui"
)

// Credentials is what the sign-in form collects.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string
}

// AuthView is the sign-in and registration form.
type AuthView struct {
	*tview.Flex
	theme      *ui.Theme
	form       *tview.Form
	message    *tview.TextView
	email      *tview.InputField
	password   *tview.InputField
	name       *tview.InputField
	onSignIn   func(Credentials)
	onRegister func(Credentials)
	onProvider func(string)
	onQuit     func()
	busy       bool
}

// NewAuthView creates the form. Each provider gets its own button.
func NewAuthView(theme *ui.Theme, providers []string) *AuthView {
	av := &AuthView{theme: theme}

	form := tview.NewForm()
	form.SetBorder(true)
	form.SetBorderColor(theme.BorderColor)
	form.SetBackgroundColor(theme.BgColor)
	form.SetTitle(" Sign in to dmsync ")
	form.SetTitleColor(theme.TitleColor)
	form.SetFieldBackgroundColor(tcell.ColorDarkSlateGray)
	form.SetLabelColor(theme.MenuKeyColor)
	form.SetButtonBackgroundColor(theme.BorderColor)

	form.AddInputField("Email", "", 40, nil, nil)
	form.AddPasswordField("Password", "", 40, '*', nil)
	form.AddInputField("Display name", "", 40, nil, nil)
	av.email = form.GetFormItemByLabel("Email").(*tview.InputField)
	av.password = form.GetFormItemByLabel("Password").(*tview.InputField)
	av.name = form.GetFormItemByLabel("Display name").(*tview.InputField)

	form.AddButton("Sign in", func() {
		if av.onSignIn != nil && !av.busy {
			av.onSignIn(av.credentials())
		}
	})
	form.AddButton("Register", func() {
		if av.onRegister != nil && !av.busy {
			av.onRegister(av.credentials())
		}
	})
	for _, p := range providers {
		provider := p
		form.AddButton("Sign in with "+provider, func() {
			if av.onProvider != nil && !av.busy {
				av.onProvider(provider)
			}
		})
	}
	form.AddButton("Quit", func() {
		if av.onQuit != nil {
			av.onQuit()
		}
	})
	form.SetCancelFunc(func() {
		if av.onQuit != nil {
			av.onQuit()
		}
	})

	message := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	message.SetBackgroundColor(theme.BgColor)

	av.form = form
	av.message = message
	av.Flex = tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(form, 13, 0, true).
			AddItem(message, 2, 0, false).
			AddItem(nil, 0, 1, false), 64, 0, true).
		AddItem(nil, 0, 1, false)
	av.Flex.SetBackgroundColor(theme.BgColor)
	av.ShowHint()
	return av
}

// Name implements ui.Component.
func (av *AuthView) Name() string { return "Sign in" }

// SetOnSignIn sets the callback for the sign-in button.
func (av *AuthView) SetOnSignIn(fn func(Credentials)) { av.onSignIn = fn }

// SetOnRegister sets the callback for the register button.
func (av *AuthView) SetOnRegister(fn func(Credentials)) { av.onRegister = fn }

// SetOnProvider sets the callback for the external provider buttons.
func (av *AuthView) SetOnProvider(fn func(string)) { av.onProvider = fn }

// SetOnQuit sets the callback for Quit and Esc.
func (av *AuthView) SetOnQuit(fn func()) { av.onQuit = fn }

// Form returns the form, for focus.
func (av *AuthView) Form() *tview.Form { return av.form }

func (av *AuthView) credentials() Credentials {
	return Credentials{
		Email:       av.email.GetText(),
		Password:    av.password.GetText(),
		DisplayName: av.name.GetText(),
	}
}

// SetBusy shows progress and ignores further submissions until cleared.
func (av *AuthView) SetBusy(msg string) {
	av.busy = true
	av.show(av.theme.FlashInfoColor, msg)
}

// ShowError reports a failed attempt and re-enables the form.
func (av *AuthView) ShowError(err error) {
	av.busy = false
	av.show(av.theme.FlashErrColor, err.Error())
}

// ShowHint resets the message line to the usage hint.
func (av *AuthView) ShowHint() {
	av.busy = false
	av.show(av.theme.DimColor, "Display name is only needed to register")
}

// Reset clears the password and the message, used after sign-out.
func (av *AuthView) Reset() {
	av.password.SetText("")
	av.ShowHint()
	av.form.SetFocus(0)
}

func (av *AuthView) show(color tcell.Color, msg string) {
	av.message.Clear()
	_, _ = fmt.Fprintf(av.message, "[%s]%s[-]", ui.ColorTag(color), tview.Escape(msg))
}
