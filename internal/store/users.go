package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

// Provider names recorded on user rows.
const ProviderPassword = "password"

// Users is the directory of known users.
type Users struct {
	s *Store
}

// Users returns the directory backend.
func (s *Store) Users() *Users {
	return &Users{s: s}
}

// NewUser describes a directory entry to create.
type NewUser struct {
	ID           string // generated when empty
	Email        string
	DisplayName  string
	PhotoURL     string
	Provider     string
	PasswordHash []byte // stored in credentials when set
	Online       bool
}

const userColumns = `id, email, display_name, photo_url, is_online, last_seen`

func scanUser(row scanner) (model.DirectoryEntry, error) {
	var d model.DirectoryEntry
	var lastSeen int64
	err := row.Scan(&d.ID, &d.Email, &d.DisplayName, &d.PhotoURL, &d.IsOnline, &lastSeen)
	d.LastSeen = fromMillis(lastSeen)
	return d, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Create inserts a user. An email already on file is ErrConflict.
func (u *Users) Create(ctx context.Context, nu NewUser) (model.DirectoryEntry, error) {
	if nu.ID == "" {
		nu.ID = uuid.NewString()
	}
	if nu.Provider == "" {
		nu.Provider = ProviderPassword
	}
	now := u.s.Now()
	entry := model.DirectoryEntry{
		ID:          nu.ID,
		Email:       normalizeEmail(nu.Email),
		DisplayName: strings.TrimSpace(nu.DisplayName),
		PhotoURL:    nu.PhotoURL,
		IsOnline:    nu.Online,
		LastSeen:    now,
	}

	err := u.s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, display_name, photo_url, provider, is_online, last_seen, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Email, entry.DisplayName, entry.PhotoURL, nu.Provider, entry.IsOnline, now.UnixMilli(), now.UnixMilli())
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", entry.Email, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if len(nu.PasswordHash) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO credentials (user_id, password_hash, updated_at) VALUES (?, ?, ?)`,
			entry.ID, nu.PasswordHash, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("insert credentials: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.DirectoryEntry{}, err
	}
	u.s.notify(bus.KindUsersChanged)
	return entry, nil
}

// Get returns the user with id.
func (u *Users) Get(ctx context.Context, id string) (model.DirectoryEntry, error) {
	d, err := scanUser(u.s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return d, err
}

// ByEmail returns the user registered with email, compared case-insensitively.
func (u *Users) ByEmail(ctx context.Context, email string) (model.DirectoryEntry, error) {
	email = normalizeEmail(email)
	d, err := scanUser(u.s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND email != ''`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return d, err
}

// PasswordHash returns the stored password hash of a user.
func (u *Users) PasswordHash(ctx context.Context, id string) ([]byte, error) {
	var hash []byte
	err := u.s.db.QueryRowContext(ctx, `SELECT password_hash FROM credentials WHERE user_id = ?`, id).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credentials %s: %w", id, ErrNotFound)
	}
	return hash, err
}

// List returns every user ordered by display name.
func (u *Users) List(ctx context.Context) ([]model.DirectoryEntry, error) {
	rows, err := u.s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY display_name COLLATE NOCASE, email, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.DirectoryEntry
	for rows.Next() {
		d, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SubscribeAll streams the full directory. The signed-in user is included;
// the core filters self out.
func (u *Users) SubscribeAll(ctx context.Context) (<-chan model.Snapshot[model.DirectoryEntry], error) {
	return watch(ctx, u.s, bus.KindUsersChanged, u.List)
}

// Upsert applies field updates to the user with id, creating the row first
// when it does not exist yet.
func (u *Users) Upsert(ctx context.Context, id string, updates []model.Update) error {
	if id == "" {
		return fmt.Errorf("upsert user: empty id")
	}
	now := u.s.Now()
	err := u.s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO users (id, created_at, last_seen) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			id, now.UnixMilli(), now.UnixMilli())
		if err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		d, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		if err != nil {
			return err
		}
		for _, up := range updates {
			if err := model.ApplyDirectory(&d, up, now); err != nil {
				return err
			}
		}
		d.Email = normalizeEmail(d.Email)
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET email = ?, display_name = ?, photo_url = ?, is_online = ?, last_seen = ?
			WHERE id = ?`,
			d.Email, d.DisplayName, d.PhotoURL, d.IsOnline, toMillis(d.LastSeen), id)
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", d.Email, ErrConflict)
		}
		return err
	})
	if err != nil {
		return err
	}
	u.s.notify(bus.KindUsersChanged)
	return nil
}

// SetPresence records a user as online or offline and stamps last_seen.
func (u *Users) SetPresence(ctx context.Context, id string, online bool) error {
	return u.Upsert(ctx, id, []model.Update{
		model.Set(model.FieldIsOnline, online),
		model.Set(model.FieldLastSeen, model.ServerTimestamp),
	})
}
