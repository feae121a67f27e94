package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

var (
	// ErrNotFound is returned when an addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness rule.
	ErrConflict = errors.New("conflict")
	// ErrUnknownField is returned for an update path the store cannot apply.
	ErrUnknownField = model.ErrUnknownField
	// ErrInvalidValue is returned when an update value has the wrong type.
	ErrInvalidValue = model.ErrInvalidValue
)

// Store is the local backend. It owns the schema and publishes a scoped
// change event on the bus after every committed write.
type Store struct {
	db    *DB
	bus   *bus.Bus
	log   *zap.Logger
	clock *Clock
}

// New creates a Store over an opened and migrated DB.
func New(db *DB, b *bus.Bus, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, bus: b, log: log, clock: NewClock(time.Now)}
}

// DB returns the underlying database.
func (s *Store) DB() *DB {
	return s.db
}

// Now returns the next server timestamp.
func (s *Store) Now() time.Time {
	return s.clock.Now()
}

func (s *Store) notify(kinds ...string) {
	if s.bus == nil {
		return
	}
	for _, k := range kinds {
		s.bus.Notify(k)
	}
}

// Clock hands out strictly increasing millisecond timestamps.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewClock creates a Clock reading from now.
func NewClock(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns a timestamp later than every previous one from this clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ms := c.now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return time.UnixMilli(ms)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// withTx runs fn in a transaction and commits when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}
