package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
)

type fakeBackend struct {
	calls   []string
	profile model.ProfileUpdate
	err     error
}

func (f *fakeBackend) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeBackend) Bus() *bus.Bus { return bus.New() }
func (f *fakeBackend) View() chat.ViewModel { return chat.ViewModel{} }
func (f *fakeBackend) Select(_ context.Context, id string) error {
	return f.record("select " + id)
}
func (f *fakeBackend) StartConversation(_ context.Context, e model.DirectoryEntry) (string, error) {
	return "c-" + e.ID, f.record("start " + e.ID)
}
func (f *fakeBackend) SendMessage(_ context.Context, text string, _ *model.Message) (string, error) {
	return "m1", f.record("send " + text)
}
func (f *fakeBackend) DeleteMessage(_ context.Context, id string) error {
	return f.record("delete-message " + id)
}
func (f *fakeBackend) PermanentlyDeleteMessage(_ context.Context, id string) error {
	return f.record("purge-message " + id)
}
func (f *fakeBackend) ArchiveConversation(_ context.Context, id string) error {
	return f.record("archive " + id)
}
func (f *fakeBackend) UnarchiveConversation(_ context.Context, id string) error {
	return f.record("unarchive " + id)
}
func (f *fakeBackend) MuteConversation(_ context.Context, id string) error {
	return f.record("mute " + id)
}
func (f *fakeBackend) UnmuteConversation(_ context.Context, id string) error {
	return f.record("unmute " + id)
}
func (f *fakeBackend) MarkMessagesAsRead(_ context.Context, id string) error {
	return f.record("read " + id)
}
func (f *fakeBackend) DeleteConversation(_ context.Context, id string) error {
	return f.record("delete " + id)
}
func (f *fakeBackend) UpdateProfile(_ context.Context, p model.ProfileUpdate) (*model.Identity, error) {
	f.profile = p
	return &model.Identity{ID: "u1"}, f.record("profile")
}

type fakeAuth struct {
	signedOut bool
}

func (f *fakeAuth) Providers() []string { return nil }
func (f *fakeAuth) SignIn(context.Context, string, string) (*model.Identity, error) {
	return nil, nil
}
func (f *fakeAuth) SignUp(context.Context, string, string, string) (*model.Identity, error) {
	return nil, nil
}
func (f *fakeAuth) SignInWithOAuth(context.Context, string) (*model.Identity, error) {
	return nil, nil
}
func (f *fakeAuth) SignOut(context.Context) error {
	f.signedOut = true
	return nil
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Name   Ada Lovelace ", Command{Name: "name", Args: "Ada Lovelace"}},
		{"photo https://x/y.png", Command{Name: "photo", Args: "https://x/y.png"}},
		{"", Command{}},
	}
	for _, tc := range tests {
		if got := ParseCommand(tc.input); got != tc.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
	}
}

func TestRunCommandDispatch(t *testing.T) {
	tests := []struct {
		input   string
		target  string
		call    string
		outcome Outcome
	}{
		{"archive", "c1", "archive c1", OutcomeLeave},
		{"unarchive", "c1", "unarchive c1", OutcomeLeave},
		{"mute", "c1", "mute c1", OutcomeNone},
		{"unmute", "c1", "unmute c1", OutcomeNone},
		{"read", "c1", "read c1", OutcomeNone},
		{"delete", "c1", "delete c1", OutcomeLeave},
		{"name Ada", "", "profile", OutcomeNone},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			core := &fakeBackend{}
			env := commandEnv{core: core, auth: &fakeAuth{}, target: tc.target}
			outcome, err := runCommand(context.Background(), env, tc.input)
			if err != nil {
				t.Fatalf("runCommand: %v", err)
			}
			if outcome != tc.outcome {
				t.Errorf("outcome = %v, want %v", outcome, tc.outcome)
			}
			if len(core.calls) != 1 || core.calls[0] != tc.call {
				t.Errorf("calls = %v, want [%s]", core.calls, tc.call)
			}
		})
	}
}

func TestRunCommandProfile(t *testing.T) {
	core := &fakeBackend{}
	env := commandEnv{core: core, auth: &fakeAuth{}}
	if _, err := runCommand(context.Background(), env, "photo https://example.com/a.png"); err != nil {
		t.Fatal(err)
	}
	if core.profile.DisplayName != nil {
		t.Error("photo changed the display name")
	}
	if core.profile.PhotoURL == nil || *core.profile.PhotoURL != "https://example.com/a.png" {
		t.Errorf("PhotoURL = %v", core.profile.PhotoURL)
	}
}

func TestRunCommandValidation(t *testing.T) {
	core := &fakeBackend{}
	env := commandEnv{core: core, auth: &fakeAuth{}}

	if _, err := runCommand(context.Background(), env, "frobnicate"); !errors.Is(err, errUnknownCommand) {
		t.Errorf("unknown command error = %v", err)
	}
	if _, err := runCommand(context.Background(), env, "archive"); !errors.Is(err, errNoConversation) {
		t.Errorf("archive without target error = %v", err)
	}
	_, err := runCommand(context.Background(), env, "name")
	if err == nil || !strings.Contains(err.Error(), "usage: :name") {
		t.Errorf("name without args error = %v", err)
	}
	if len(core.calls) != 0 {
		t.Errorf("backend called on invalid input: %v", core.calls)
	}
}

func TestRunCommandOutcomes(t *testing.T) {
	auth := &fakeAuth{}
	env := commandEnv{core: &fakeBackend{}, auth: auth}
	for input, want := range map[string]Outcome{
		"q":        OutcomeQuit,
		"quit":     OutcomeQuit,
		"help":     OutcomeHelp,
		"archived": OutcomeToggleArchived,
		"":         OutcomeNone,
	} {
		got, err := runCommand(context.Background(), env, input)
		if err != nil || got != want {
			t.Errorf("runCommand(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := runCommand(context.Background(), env, "logout"); err != nil || !auth.signedOut {
		t.Errorf("logout: err=%v signedOut=%v", err, auth.signedOut)
	}
}

func TestRunCommandBackendError(t *testing.T) {
	boom := errors.New("boom")
	env := commandEnv{core: &fakeBackend{err: boom}, auth: &fakeAuth{}, target: "c1"}
	if _, err := runCommand(context.Background(), env, "mute"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestCommandNamesCoverHelp(t *testing.T) {
	names := CommandNames()
	help := commandHelp()
	if len(names) != len(help) {
		t.Fatalf("names %d, help %d", len(names), len(help))
	}
	for i, n := range names {
		if !strings.HasPrefix(help[i].Key, ":"+n) {
			t.Errorf("help[%d] = %q, want :%s", i, help[i].Key, n)
		}
	}
}

var _ Backend = (*chat.Core)(nil)
