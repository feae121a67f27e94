package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
	"github.com/matheus3301/dmsync/internal/tui/keys"
	"github.com/matheus3301/dmsync/internal/tui/ui"
	"github.com/matheus3301/dmsync/internal/tui/views"
)

// Page names.
const (
	pageList      = "conversations"
	pageThread    = "thread"
	pageDirectory = "directory"
	pageAuth      = "auth"
	pageHelp      = "help"
	pageInfo      = "info"
)

const clockInterval = 30 * time.Second

// Backend is the chat core as the shell drives it.
type Backend interface {
	Bus() *bus.Bus
	View() chat.ViewModel
	Select(ctx context.Context, conversationID string) error
	StartConversation(ctx context.Context, other model.DirectoryEntry) (string, error)
	SendMessage(ctx context.Context, text string, replyTo *model.Message) (string, error)
	DeleteMessage(ctx context.Context, messageID string) error
	PermanentlyDeleteMessage(ctx context.Context, messageID string) error
	ArchiveConversation(ctx context.Context, conversationID string) error
	UnarchiveConversation(ctx context.Context, conversationID string) error
	MuteConversation(ctx context.Context, conversationID string) error
	UnmuteConversation(ctx context.Context, conversationID string) error
	MarkMessagesAsRead(ctx context.Context, conversationID string) error
	DeleteConversation(ctx context.Context, conversationID string) error
	UpdateProfile(ctx context.Context, p model.ProfileUpdate) (*model.Identity, error)
}

// Auth signs users in and out.
type Auth interface {
	Providers() []string
	SignIn(ctx context.Context, email, password string) (*model.Identity, error)
	SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error)
	SignInWithOAuth(ctx context.Context, provider string) (*model.Identity, error)
	SignOut(ctx context.Context) error
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	core     Backend
	auth     Auth
	session  string
	registry *keys.Registry
	flash    *ui.FlashModel

	main      *tview.Flex
	pages     *ui.Pages
	profile   *ui.ProfileInfo
	menu      *ui.Menu
	logo      *ui.Logo
	crumbs    *ui.Crumbs
	flashBar  *ui.FlashBar
	prompt    *ui.Prompt
	statusBar *views.StatusBar

	list      *views.ConversationList
	thread    *views.MessageThread
	directory *views.DirectoryView
	authView  *views.AuthView
	help      *views.HelpView
	info      *views.ConversationInfo

	// UI goroutine only.
	view      chat.ViewModel
	opening   string
	infoID    string
	marking   bool
	lastFocus tview.Primitive

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(core Backend, auth Auth, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		core:      core,
		auth:      auth,
		session:   sessionName,
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		pages:     ui.NewPages(),
		profile:   ui.NewProfileInfo(theme),
		menu:      ui.NewMenu(theme),
		logo:      ui.NewLogo(theme),
		crumbs:    ui.NewCrumbs(theme),
		flashBar:  ui.NewFlashBar(theme),
		prompt:    ui.NewPrompt(theme),
		statusBar: views.NewStatusBar(theme),
		list:      views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		directory: views.NewDirectoryView(theme),
		authView:  views.NewAuthView(theme, auth.Providers()),
		info:      views.NewConversationInfo(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.help = views.NewHelpView(theme, a.helpSections())
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(
		keys.Rune(':', "command", func() { a.showPrompt(ui.PromptCommand, "") }),
		keys.Rune('?', "help", func() { a.apply(OutcomeHelp) }),
		keys.Key(tcell.KeyEscape, "esc", "back", a.back),
		keys.Rune('q', "quit", a.app.Stop),
	)
	a.registry.AddView(pageList,
		keys.Key(tcell.KeyEnter, "enter", "open", a.openSelected),
		keys.Rune('n', "new", a.showDirectory),
		keys.Key(tcell.KeyTab, "tab", "archived", a.toggleArchived),
		keys.Rune('/', "filter", func() { a.showPrompt(ui.PromptFilter, a.list.Filter()) }),
		keys.Rune('d', "details", a.showInfo),
		keys.Rune('a', "archive", a.toggleArchive),
		keys.Rune('m', "mute", a.toggleMute),
	)
	a.registry.AddView(pageThread,
		keys.Rune('i', "write", a.focusComposer),
		keys.Rune('k', "up", func() { a.thread.MoveCursor(-1) }),
		keys.Rune('j', "down", func() { a.thread.MoveCursor(1) }),
		keys.Key(tcell.KeyUp, "", "up", func() { a.thread.MoveCursor(-1) }),
		keys.Key(tcell.KeyDown, "", "down", func() { a.thread.MoveCursor(1) }),
		keys.Rune('r', "reply", a.replySelected),
		keys.Rune('x', "delete", func() { a.deleteSelected(false) }),
		keys.Rune('X', "purge", func() { a.deleteSelected(true) }),
		keys.Rune('d', "details", a.showInfo),
		keys.Rune('a', "archive", a.toggleArchive),
		keys.Rune('m', "mute", a.toggleMute),
	)
}

func (a *App) helpSections() []views.HelpSection {
	keysFor := func(page string) []views.HelpEntry {
		hints := a.registry.Hints(page)
		out := make([]views.HelpEntry, len(hints))
		for i, h := range hints {
			out[i] = views.HelpEntry{Key: h.Key, Description: h.Description}
		}
		return out
	}
	return []views.HelpSection{
		{Title: "Conversations", Entries: keysFor(pageList)},
		{Title: "Thread", Entries: keysFor(pageThread)},
		{Title: "Composer", Entries: []views.HelpEntry{
			{Key: "enter", Description: "send"},
			{Key: "esc", Description: "cancel reply, then back to messages"},
		}},
		{Title: "Commands", Entries: commandHelp()},
	}
}

func (a *App) setupCallbacks() {
	a.list.SetSelectedFunc(func(int, int) { a.openSelected() })

	composer := a.thread.Composer()
	composer.SetOnSend(a.send)
	composer.SetOnLeave(func() { a.app.SetFocus(a.thread.Messages()) })

	a.directory.SetOnSelect(a.startConversation)
	a.directory.SetInputDone(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter, tcell.KeyTab, tcell.KeyDown:
			a.app.SetFocus(a.directory.Results())
		case tcell.KeyEscape:
			a.back()
		}
	})

	a.authView.SetOnSignIn(func(c views.Credentials) {
		a.authView.SetBusy("Signing in...")
		a.signIn(func(ctx context.Context) error {
			_, err := a.auth.SignIn(ctx, c.Email, c.Password)
			return err
		})
	})
	a.authView.SetOnRegister(func(c views.Credentials) {
		a.authView.SetBusy("Creating account...")
		a.signIn(func(ctx context.Context) error {
			_, err := a.auth.SignUp(ctx, c.Email, c.Password, c.DisplayName)
			return err
		})
	})
	a.authView.SetOnProvider(func(provider string) {
		a.authView.SetBusy("Waiting for " + provider + "...")
		a.signIn(func(ctx context.Context) error {
			_, err := a.auth.SignInWithOAuth(ctx, provider)
			return err
		})
	})
	a.authView.SetOnQuit(a.app.Stop)

	a.prompt.SetCommands(CommandNames())
	a.prompt.SetOnChange(func(mode ui.PromptMode, text string) {
		if mode == ui.PromptFilter {
			a.list.SetFilter(text)
		}
	})
	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		if mode == ui.PromptFilter {
			a.list.SetFilter(text)
			return
		}
		a.execute(text)
	})
	a.prompt.SetOnCancel(func() {
		if a.prompt.Mode() == ui.PromptFilter {
			a.list.SetFilter("")
		}
		a.hidePrompt()
	})

	a.pages.SetOnChange(func([]string) { a.refreshChrome() })
}

func (a *App) setupLayout() {
	a.pages.Register(pageList, a.list, a.list.Name)
	a.pages.Register(pageThread, a.thread, a.thread.Name)
	a.pages.Register(pageDirectory, a.directory, a.directory.Name)
	a.pages.Register(pageAuth, a.authView, a.authView.Name)
	a.pages.Register(pageHelp, a.help, a.help.Name)
	a.pages.Register(pageInfo, a.info, a.info.Name)

	header := tview.NewFlex().
		AddItem(a.profile, 40, 0, false).
		AddItem(a.menu, 0, 1, false).
		AddItem(a.logo, 26, 0, false)

	a.main = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.main, true)
	a.app.SetInputCapture(a.capture)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	current := a.pages.Current()
	if current == pageAuth {
		return event
	}
	// Text inputs handle their own keys, Esc included.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}
	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

// render applies a view snapshot. Runs on the UI goroutine.
func (a *App) render(v chat.ViewModel) {
	a.view = v
	a.statusBar.Update(v)
	if v.Self == nil {
		a.opening = ""
		if a.pages.Current() != pageAuth {
			a.hidePrompt()
			a.authView.Reset()
			a.pages.Reset(pageAuth)
			a.app.SetFocus(a.authView.Form())
		}
		a.profile.Update(&ui.ProfileData{Session: a.session})
		return
	}
	if a.pages.Current() == pageAuth || a.pages.Current() == "" {
		a.authView.ShowHint()
		a.pages.Reset(pageList)
		a.app.SetFocus(a.list)
	}
	self := v.Self.ID

	online := make(map[string]bool, len(v.Directory))
	for _, e := range v.Directory {
		online[e.ID] = e.IsOnline
	}
	convs := v.Conversations
	if a.list.Archived() {
		convs = v.ArchivedConversations
	}
	a.list.Update(self, convs, online, v.ConversationsStatus)
	a.directory.Update(v.Directory, v.DirectoryStatus)

	if v.ActiveConversationID == a.opening {
		a.opening = ""
	}
	if conv, ok := v.ActiveConversation(); ok {
		a.thread.Update(self, conv, v.Messages, v.MessagesStatus)
		a.markRead(self, conv)
	} else if a.opening == "" && a.pages.Contains(pageThread) {
		a.leave()
	}
	if a.pages.Current() == pageInfo {
		a.updateInfo()
	}

	unread := 0
	for _, n := range v.UnreadCounts {
		unread += n
	}
	a.profile.Update(&ui.ProfileData{
		Session:       a.session,
		Name:          v.Self.Name(),
		Email:         v.Self.Email,
		Conversations: len(v.Conversations),
		Archived:      len(v.ArchivedConversations),
		Unread:        unread,
	})
	a.refreshChrome()
}

func (a *App) refreshChrome() {
	a.crumbs.Update(a.pages.Titles())
	a.menu.Update(a.registry.Hints(a.pages.Current()))
}

// markRead clears the unread count of the open thread while it is on screen.
func (a *App) markRead(self string, conv model.Conversation) {
	if a.marking || a.pages.Current() != pageThread || conv.UnreadCount[self] == 0 {
		return
	}
	a.marking = true
	id := conv.ID
	go func() {
		err := a.core.MarkMessagesAsRead(a.ctx, id)
		a.app.QueueUpdateDraw(func() {
			a.marking = false
			if err != nil {
				a.flash.Err(err)
			}
		})
	}()
}

func (a *App) back() {
	switch a.pages.Pop() {
	case pageThread:
		a.closeThread()
	case "":
		if a.list.Filter() != "" {
			a.list.SetFilter("")
		}
	}
	a.focusCurrent()
}

// leave returns to the list when the open conversation went away.
func (a *App) leave() {
	a.pages.Reset(pageList)
	a.closeThread()
	a.focusCurrent()
}

func (a *App) closeThread() {
	a.thread.Composer().Reset()
	a.run(func(ctx context.Context) error { return a.core.Select(ctx, "") })
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageDirectory:
		a.app.SetFocus(a.directory.Input())
	case pageAuth:
		a.app.SetFocus(a.authView.Form())
	case pageHelp:
		a.app.SetFocus(a.help)
	case pageInfo:
		a.app.SetFocus(a.info)
	default:
		a.app.SetFocus(a.list)
	}
}

func (a *App) openSelected() {
	id := a.list.SelectedConversation()
	if id == "" {
		return
	}
	a.showThread(id)
	a.run(func(ctx context.Context) error {
		if err := a.core.Select(ctx, id); err != nil {
			return err
		}
		return a.core.MarkMessagesAsRead(ctx, id)
	})
}

// showThread pushes the thread page for id before the core confirms it.
func (a *App) showThread(id string) {
	if a.view.ActiveConversationID != id {
		a.opening = id
		if conv, ok := a.findConversation(id); ok && a.view.Self != nil {
			a.thread.Update(a.view.Self.ID, conv, nil, chat.StreamHealth{State: status.Connecting})
		}
	}
	a.pages.Reset(pageList)
	a.pages.Push(pageThread)
	a.app.SetFocus(a.thread.Messages())
}

func (a *App) findConversation(id string) (model.Conversation, bool) {
	for _, list := range [][]model.Conversation{a.view.Conversations, a.view.ArchivedConversations} {
		for _, c := range list {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Conversation{}, false
}

// target is the conversation page-level actions apply to.
func (a *App) target() string {
	switch a.pages.Current() {
	case pageThread:
		return a.thread.ConversationID()
	case pageInfo:
		return a.infoID
	case pageList:
		return a.list.SelectedConversation()
	}
	return ""
}

func (a *App) showDirectory() {
	a.directory.Reset()
	a.pages.Push(pageDirectory)
	a.app.SetFocus(a.directory.Input())
}

func (a *App) startConversation(e model.DirectoryEntry) {
	go func() {
		id, err := a.core.StartConversation(a.ctx, e)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.showThread(id)
		})
	}()
}

func (a *App) showInfo() {
	a.infoID = a.target()
	if a.infoID == "" || !a.updateInfo() {
		return
	}
	a.pages.Push(pageInfo)
	a.app.SetFocus(a.info)
}

func (a *App) updateInfo() bool {
	conv, ok := a.findConversation(a.infoID)
	if !ok || a.view.Self == nil {
		return false
	}
	self := a.view.Self.ID
	var peer *model.DirectoryEntry
	for i := range a.view.Directory {
		if a.view.Directory[i].ID == conv.Other(self) {
			peer = &a.view.Directory[i]
			break
		}
	}
	a.info.Update(self, conv, peer)
	return true
}

func (a *App) toggleArchived() {
	a.list.SetArchived(!a.list.Archived())
	if a.view.Self != nil {
		a.render(a.view)
	}
}

func (a *App) toggleArchive() {
	conv, ok := a.findConversation(a.target())
	if !ok || a.view.Self == nil {
		return
	}
	name := "archive"
	if conv.ArchivedBy[a.view.Self.ID] {
		name = "unarchive"
	}
	a.execute(name)
}

func (a *App) toggleMute() {
	conv, ok := a.findConversation(a.target())
	if !ok || a.view.Self == nil {
		return
	}
	name := "mute"
	if conv.MutedBy[a.view.Self.ID] {
		name = "unmute"
	}
	a.execute(name)
}

func (a *App) focusComposer() {
	a.app.SetFocus(a.thread.Composer().InputField)
}

func (a *App) replySelected() {
	m, ok := a.thread.Selected()
	if !ok {
		a.flash.Info("Select a message with j/k first")
		return
	}
	if m.IsDeleted {
		a.flash.Warn("Cannot reply to a deleted message")
		return
	}
	a.thread.Composer().ReplyTo(m)
	a.focusComposer()
}

func (a *App) deleteSelected(permanent bool) {
	m, ok := a.thread.Selected()
	if !ok || a.view.Self == nil {
		return
	}
	if m.SenderID != a.view.Self.ID {
		a.flash.Warn("You can only delete your own messages")
		return
	}
	id := m.ID
	a.run(func(ctx context.Context) error {
		if permanent {
			return a.core.PermanentlyDeleteMessage(ctx, id)
		}
		if m.IsDeleted {
			return nil
		}
		return a.core.DeleteMessage(ctx, id)
	})
}

func (a *App) send(text string, replyTo *model.Message) {
	if strings.TrimSpace(text) == "" {
		return
	}
	go func() {
		id, err := a.core.SendMessage(a.ctx, text, replyTo)
		a.app.QueueUpdateDraw(func() {
			switch {
			case err != nil && id == "":
				a.flash.Err(err)
				return
			case err != nil:
				a.flash.Warn("Sent, but the conversation summary was not updated: " + err.Error())
			}
			a.thread.Composer().Sent()
			a.thread.ClearCursor()
		})
	}()
}

func (a *App) signIn(fn func(ctx context.Context) error) {
	go func() {
		err := fn(a.ctx)
		if err == nil {
			return
		}
		a.app.QueueUpdateDraw(func() { a.authView.ShowError(err) })
	}()
}

func (a *App) showPrompt(mode ui.PromptMode, initial string) {
	if mode == ui.PromptFilter && a.pages.Current() != pageList {
		return
	}
	a.lastFocus = a.app.GetFocus()
	a.prompt.Activate(mode, initial)
	a.main.ResizeItem(a.prompt, 3, 0)
	a.app.SetFocus(a.prompt.InputField)
}

func (a *App) hidePrompt() {
	a.main.ResizeItem(a.prompt, 0, 0)
	if a.lastFocus != nil {
		a.app.SetFocus(a.lastFocus)
		a.lastFocus = nil
	}
}

// execute runs a command off the UI goroutine and applies its outcome.
func (a *App) execute(input string) {
	env := commandEnv{core: a.core, auth: a.auth, target: a.target()}
	go func() {
		outcome, err := runCommand(a.ctx, env, input)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.flash.Err(err)
				return
			}
			a.apply(outcome)
		})
	}()
}

func (a *App) apply(o Outcome) {
	switch o {
	case OutcomeQuit:
		a.app.Stop()
	case OutcomeHelp:
		a.pages.Push(pageHelp)
		a.app.SetFocus(a.help)
	case OutcomeToggleArchived:
		a.toggleArchived()
	case OutcomeLeave:
		if a.pages.Current() != pageList {
			a.leave()
		}
	}
}

// run executes fn off the UI goroutine and flashes its error.
func (a *App) run(fn func(ctx context.Context) error) {
	go func() {
		if err := fn(a.ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.flash.Err(err)
		}
	}()
}

func (a *App) watchView() {
	ch, unsub := a.core.Bus().Subscribe("view.", 1)
	defer unsub()
	for {
		select {
		case <-a.ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			v := a.core.View()
			a.app.QueueUpdateDraw(func() { a.render(v) })
		}
	}
}

func (a *App) watchFlash() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case m := <-a.flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flashBar.Update(&m) })
			time.AfterFunc(time.Until(m.Expires), func() {
				a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.flash.Current()) })
			})
		}
	}
}

// watchClock re-renders relative times and the status bar clock.
func (a *App) watchClock() {
	ticker := time.NewTicker(clockInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			v := a.core.View()
			a.app.QueueUpdateDraw(func() { a.render(v) })
		}
	}
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.render(a.core.View())
	go a.watchView()
	go a.watchFlash()
	go a.watchClock()
	defer a.cancel()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
