package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/store"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrEmailInUse         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnknownProvider    = errors.New("unknown sign-in provider")
	ErrNoSession          = errors.New("no saved session")
	ErrNotSignedIn        = errors.New("not signed in")
)

// Presence is told when a user signs in or out. The directory columns are
// always updated; Presence is an additional live channel.
type Presence interface {
	SetOnline(ctx context.Context, uid string) error
	SetOffline(ctx context.Context, uid string) error
}

// OAuthProfile is what an external provider reports about a user.
type OAuthProfile struct {
	Subject     string
	Email       string
	DisplayName string
	PhotoURL    string
}

// OAuthProvider authenticates a user with an external account.
type OAuthProvider interface {
	Name() string
	Authenticate(ctx context.Context) (OAuthProfile, error)
}

// Options configures a Local identity provider.
type Options struct {
	Users     *store.Users
	Tokens    *Tokens
	TokenPath string // where the session token is kept; empty keeps none
	Presence  Presence
	Providers []OAuthProvider
	Logger    *zap.Logger
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// Passive restores sessions without marking the user online, for
	// one-shot commands.
	Passive bool
}

// Local is an identity provider backed by the shared store. The signed-in
// user survives restarts through a token file in the session directory.
type Local struct {
	users     *store.Users
	tokens    *Tokens
	tokenPath string
	presence  Presence
	providers map[string]OAuthProvider
	log       *zap.Logger
	cost      int
	passive   bool

	mu      sync.Mutex
	current *model.Identity
	subs    map[int]chan *model.Identity
	nextSub int
}

// NewLocal creates a signed-out provider.
func NewLocal(opts Options) *Local {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	l := &Local{
		users:     opts.Users,
		tokens:    opts.Tokens,
		tokenPath: opts.TokenPath,
		presence:  opts.Presence,
		providers: make(map[string]OAuthProvider),
		log:       log,
		cost:      opts.BcryptCost,
		passive:   opts.Passive,
		subs:      make(map[int]chan *model.Identity),
	}
	if l.cost == 0 {
		l.cost = bcrypt.DefaultCost
	}
	for _, p := range opts.Providers {
		l.providers[p.Name()] = p
	}
	return l
}

// Providers returns the registered OAuth provider names.
func (l *Local) Providers() []string {
	names := make([]string, 0, len(l.providers))
	for name := range l.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Current returns the signed-in identity, or nil.
func (l *Local) Current() *model.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyIdentity(l.current)
}

// Watch emits the current identity and then every change until ctx is done.
// A slow reader only sees the latest value.
func (l *Local) Watch(ctx context.Context) <-chan *model.Identity {
	ch := make(chan *model.Identity, 1)
	out := make(chan *model.Identity)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	ch <- copyIdentity(l.current)
	l.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-ch:
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (l *Local) setCurrent(id *model.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = copyIdentity(id)
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- copyIdentity(id)
	}
}

// SignUp registers a new user with a password and signs them in.
func (l *Local) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	if at := strings.IndexByte(email, '@'); at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLen {
		return nil, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	entry, err := l.users.Create(ctx, store.NewUser{
		Email:        email,
		DisplayName:  displayName,
		Provider:     store.ProviderPassword,
		PasswordHash: hash,
		Online:       true,
	})
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrEmailInUse
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	l.log.Info("user registered", zap.String("uid", entry.ID))
	return l.begin(ctx, entry, false)
}

// SignIn checks email and password.
func (l *Local) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	entry, err := l.users.ByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	hash, err := l.users.PasswordHash(ctx, entry.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup credentials: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return l.begin(ctx, entry, true)
}

// SignInWithOAuth signs in through a registered provider. The first sign-in
// of an external account creates its directory entry.
func (l *Local) SignInWithOAuth(ctx context.Context, provider string) (*model.Identity, error) {
	p, ok := l.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	profile, err := p.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s sign-in: %w", provider, err)
	}
	if profile.Subject == "" {
		return nil, fmt.Errorf("%s sign-in: provider returned no subject", provider)
	}

	uid := provider + ":" + profile.Subject
	entry, err := l.users.Get(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		entry, err = l.users.Create(ctx, store.NewUser{
			ID:          uid,
			Email:       profile.Email,
			DisplayName: profile.DisplayName,
			PhotoURL:    profile.PhotoURL,
			Provider:    provider,
			Online:      true,
		})
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailInUse
		}
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return l.begin(ctx, entry, false)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return l.begin(ctx, entry, true)
}

// begin marks the user online, saves the session token and publishes the
// identity.
func (l *Local) begin(ctx context.Context, entry model.DirectoryEntry, markOnline bool) (*model.Identity, error) {
	if markOnline {
		if err := l.users.SetPresence(ctx, entry.ID, true); err != nil {
			return nil, fmt.Errorf("set online: %w", err)
		}
	}
	l.trackPresence(ctx, entry.ID, true)
	return l.establish(entry)
}

func (l *Local) establish(entry model.DirectoryEntry) (*model.Identity, error) {
	if err := l.saveToken(entry.ID); err != nil {
		return nil, err
	}
	id := &model.Identity{ID: entry.ID, DisplayName: entry.DisplayName, PhotoURL: entry.PhotoURL, Email: entry.Email}
	l.setCurrent(id)
	l.log.Info("signed in", zap.String("uid", id.ID))
	return copyIdentity(id), nil
}

// Restore signs in from the saved session token. It returns ErrNoSession
// when none is saved or it is no longer valid. A passive provider restores
// without touching presence.
func (l *Local) Restore(ctx context.Context) (*model.Identity, error) {
	if l.tokenPath == "" || l.tokens == nil {
		return nil, ErrNoSession
	}
	data, err := os.ReadFile(l.tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	uid, err := l.tokens.Verify(strings.TrimSpace(string(data)))
	if err != nil {
		l.log.Info("discarding saved session", zap.Error(err))
		_ = os.Remove(l.tokenPath)
		return nil, err
	}
	entry, err := l.users.Get(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		_ = os.Remove(l.tokenPath)
		return nil, fmt.Errorf("%w: user %s no longer exists", ErrNoSession, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if l.passive {
		return l.establish(entry)
	}
	return l.begin(ctx, entry, true)
}

// SignOut marks the user offline, forgets the session and publishes nil.
func (l *Local) SignOut(ctx context.Context) error {
	cur := l.Current()
	if cur == nil {
		return nil
	}
	if err := l.users.SetPresence(ctx, cur.ID, false); err != nil {
		l.log.Warn("set offline", zap.String("uid", cur.ID), zap.Error(err))
	}
	l.trackPresence(ctx, cur.ID, false)
	if l.tokenPath != "" {
		if err := os.Remove(l.tokenPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove session: %w", err)
		}
	}
	l.setCurrent(nil)
	l.log.Info("signed out", zap.String("uid", cur.ID))
	return nil
}

// UpdateProfile changes the display name or photo of the signed-in user.
func (l *Local) UpdateProfile(ctx context.Context, p model.ProfileUpdate) (*model.Identity, error) {
	cur := l.Current()
	if cur == nil {
		return nil, ErrNotSignedIn
	}
	var updates []model.Update
	if p.DisplayName != nil {
		cur.DisplayName = *p.DisplayName
		updates = append(updates, model.Set(model.FieldDisplayName, *p.DisplayName))
	}
	if p.PhotoURL != nil {
		cur.PhotoURL = *p.PhotoURL
		updates = append(updates, model.Set(model.FieldPhotoURL, *p.PhotoURL))
	}
	if len(updates) == 0 {
		return cur, nil
	}
	if err := l.users.Upsert(ctx, cur.ID, updates); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	l.setCurrent(cur)
	return copyIdentity(cur), nil
}

func (l *Local) trackPresence(ctx context.Context, uid string, online bool) {
	if l.presence == nil {
		return
	}
	var err error
	if online {
		err = l.presence.SetOnline(ctx, uid)
	} else {
		err = l.presence.SetOffline(ctx, uid)
	}
	if err != nil {
		l.log.Warn("presence update failed", zap.String("uid", uid), zap.Bool("online", online), zap.Error(err))
	}
}

func (l *Local) saveToken(uid string) error {
	if l.tokenPath == "" || l.tokens == nil {
		return nil
	}
	token, err := l.tokens.Issue(uid)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(l.tokenPath), 0700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(l.tokenPath, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
