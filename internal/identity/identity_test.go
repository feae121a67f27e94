package identity

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

type recordingPresence struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPresence) SetOnline(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "online:"+uid)
	return nil
}

func (p *recordingPresence) SetOffline(_ context.Context, uid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "offline:"+uid)
	return nil
}

func (p *recordingPresence) list() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type staticProvider struct {
	name    string
	profile OAuthProfile
	err     error
}

func (p staticProvider) Name() string { return p.name }

func (p staticProvider) Authenticate(context.Context) (OAuthProfile, error) {
	return p.profile, p.err
}

type fixture struct {
	users    *store.Users
	tokens   *Tokens
	dir      string
	presence *recordingPresence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "backend.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		users:    store.New(db, bus.New(), nil).Users(),
		tokens:   NewTokens([]byte("test-secret"), time.Hour),
		dir:      dir,
		presence: &recordingPresence{},
	}
}

func (f *fixture) local(providers ...OAuthProvider) *Local {
	return NewLocal(Options{
		Users:      f.users,
		Tokens:     f.tokens,
		TokenPath:  filepath.Join(f.dir, "session.jwt"),
		Presence:   f.presence,
		Providers:  providers,
		BcryptCost: bcrypt.MinCost,
	})
}

func TestSignUpAndSignIn(t *testing.T) {
	f := newFixture(t)
	l := f.local()
	ctx := context.Background()

	id, err := l.SignUp(ctx, "Alice@Example.com", "secret1", "Alice")
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if id.Email != "alice@example.com" || id.DisplayName != "Alice" {
		t.Errorf("identity = %+v", id)
	}
	if cur := l.Current(); cur == nil || cur.ID != id.ID {
		t.Errorf("Current() = %+v, want %s", cur, id.ID)
	}
	entry, err := f.users.Get(ctx, id.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.IsOnline {
		t.Error("new user not marked online")
	}

	if err := l.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if l.Current() != nil {
		t.Error("Current() after SignOut should be nil")
	}
	entry, _ = f.users.Get(ctx, id.ID)
	if entry.IsOnline {
		t.Error("user still online after SignOut")
	}

	if _, err := l.SignIn(ctx, "alice@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("SignIn(wrong) error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := l.SignIn(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("SignIn(unknown) error = %v, want ErrInvalidCredentials", err)
	}
	again, err := l.SignIn(ctx, "ALICE@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if again.ID != id.ID {
		t.Errorf("SignIn id = %s, want %s", again.ID, id.ID)
	}

	want := []string{"online:" + id.ID, "offline:" + id.ID, "online:" + id.ID}
	got := f.presence.list()
	if len(got) != len(want) {
		t.Fatalf("presence events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("presence[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	l := f.local()
	ctx := context.Background()

	tests := []struct {
		email, password string
		want            error
	}{
		{"not-an-email", "secret1", ErrInvalidEmail},
		{"@example.com", "secret1", ErrInvalidEmail},
		{"bob@", "secret1", ErrInvalidEmail},
		{"bob@example.com", "12345", ErrWeakPassword},
	}
	for _, tt := range tests {
		if _, err := l.SignUp(ctx, tt.email, tt.password, ""); !errors.Is(err, tt.want) {
			t.Errorf("SignUp(%q, %q) error = %v, want %v", tt.email, tt.password, err, tt.want)
		}
	}

	if _, err := l.SignUp(ctx, "bob@example.com", "secret1", "Bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SignUp(ctx, "bob@example.com", "secret2", "Bobby"); !errors.Is(err, ErrEmailInUse) {
		t.Errorf("duplicate SignUp error = %v, want ErrEmailInUse", err)
	}
}

func TestRestoreFromToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.local()
	id, err := first.SignUp(ctx, "carol@example.com", "secret1", "Carol")
	if err != nil {
		t.Fatal(err)
	}

	second := f.local()
	restored, err := second.Restore(ctx)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.ID != id.ID || restored.DisplayName != "Carol" {
		t.Errorf("restored = %+v, want %s", restored, id.ID)
	}

	if err := second.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := f.local().Restore(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Restore() after SignOut error = %v, want ErrNoSession", err)
	}
}

func TestRestoreRejectsForeignToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.local().SignUp(ctx, "dave@example.com", "secret1", "Dave"); err != nil {
		t.Fatal(err)
	}

	f.tokens = NewTokens([]byte("another-secret"), time.Hour)
	l := f.local()
	if _, err := l.Restore(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Restore() error = %v, want ErrNoSession", err)
	}
	if _, err := os.Stat(filepath.Join(f.dir, "session.jwt")); !os.IsNotExist(err) {
		t.Error("invalid session token was not removed")
	}
}

func TestSignInWithOAuth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.local(staticProvider{
		name:    "github",
		profile: OAuthProfile{Subject: "42", Email: "erin@example.com", DisplayName: "Erin", PhotoURL: "https://img/erin"},
	})

	if got := l.Providers(); len(got) != 1 || got[0] != "github" {
		t.Errorf("Providers() = %v", got)
	}
	if _, err := l.SignInWithOAuth(ctx, "gitlab"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("unknown provider error = %v, want ErrUnknownProvider", err)
	}

	id, err := l.SignInWithOAuth(ctx, "github")
	if err != nil {
		t.Fatalf("SignInWithOAuth() error = %v", err)
	}
	if id.ID != "github:42" || id.PhotoURL != "https://img/erin" {
		t.Errorf("identity = %+v", id)
	}
	if _, err := f.users.PasswordHash(ctx, id.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("oauth user has password credentials: %v", err)
	}

	// A second sign-in reuses the directory entry.
	if err := l.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	again, err := l.SignInWithOAuth(ctx, "github")
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != id.ID {
		t.Errorf("second sign-in id = %s, want %s", again.ID, id.ID)
	}
	all, err := f.users.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("directory has %d entries, want 1", len(all))
	}
}

func TestOAuthProviderFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("consent denied")
	l := f.local(staticProvider{name: "github", err: boom})
	if _, err := l.SignInWithOAuth(context.Background(), "github"); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if l.Current() != nil {
		t.Error("failed sign-in left an identity behind")
	}
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.local()

	name := "Frank"
	if _, err := l.UpdateProfile(ctx, model.ProfileUpdate{DisplayName: &name}); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("UpdateProfile() signed out error = %v, want ErrNotSignedIn", err)
	}

	id, err := l.SignUp(ctx, "frank@example.com", "secret1", "frank")
	if err != nil {
		t.Fatal(err)
	}
	photo := "https://img/frank"
	got, err := l.UpdateProfile(ctx, model.ProfileUpdate{DisplayName: &name, PhotoURL: &photo})
	if err != nil {
		t.Fatal(err)
	}
	if got.DisplayName != "Frank" || got.PhotoURL != photo {
		t.Errorf("UpdateProfile() = %+v", got)
	}
	entry, err := f.users.Get(ctx, id.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.DisplayName != "Frank" || entry.PhotoURL != photo {
		t.Errorf("directory entry = %+v", entry)
	}
}

func TestWatchEmitsCurrentThenChanges(t *testing.T) {
	f := newFixture(t)
	l := f.local()
	ctx, cancel := context.WithCancel(context.Background())

	ch := l.Watch(ctx)
	next := func() *model.Identity {
		t.Helper()
		select {
		case id := <-ch:
			return id
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for identity")
			return nil
		}
	}

	if id := next(); id != nil {
		t.Errorf("initial identity = %+v, want nil", id)
	}
	signed, err := l.SignUp(ctx, "gina@example.com", "secret1", "Gina")
	if err != nil {
		t.Fatal(err)
	}
	if id := next(); id == nil || id.ID != signed.ID {
		t.Errorf("identity after SignUp = %+v", id)
	}
	if err := l.SignOut(ctx); err != nil {
		t.Fatal(err)
	}
	if id := next(); id != nil {
		t.Errorf("identity after SignOut = %+v, want nil", id)
	}

	cancel()
	for range ch {
	}
}

func TestTokens(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tok := NewTokens([]byte("k"), time.Minute)
	tok.now = func() time.Time { return now }

	signed, err := tok.Issue("u1")
	if err != nil {
		t.Fatal(err)
	}
	uid, err := tok.Verify(signed)
	if err != nil || uid != "u1" {
		t.Fatalf("Verify() = %q, %v", uid, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := tok.Verify(signed); !errors.Is(err, ErrNoSession) {
		t.Errorf("expired Verify() error = %v, want ErrNoSession", err)
	}
	if _, err := tok.Verify("garbage"); !errors.Is(err, ErrNoSession) {
		t.Errorf("garbage Verify() error = %v, want ErrNoSession", err)
	}
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "token.key")
	first, err := LoadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 32 {
		t.Errorf("secret length = %d, want 32", len(first))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("secret mode = %o, want 600", perm)
	}
	second, err := LoadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("secret changed between loads")
	}
}

func TestPassiveRestoreKeepsPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.local().SignUp(ctx, "hank@example.com", "secret1", "Hank")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.users.SetPresence(ctx, id.ID, false); err != nil {
		t.Fatal(err)
	}

	l := NewLocal(Options{Users: f.users, Tokens: f.tokens, TokenPath: filepath.Join(f.dir, "session.jwt"), Passive: true})
	if _, err := l.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	entry, err := f.users.Get(ctx, id.ID)
	if err != nil {
		t.Fatal(err)
	}
	if entry.IsOnline {
		t.Error("passive restore marked the user online")
	}
}
