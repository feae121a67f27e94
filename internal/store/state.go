package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Sync state keys.
const keyLastConversation = "last_conversation"

// State keeps small per-user checkpoints such as the last open conversation.
type State struct {
	s *Store
}

// State returns the checkpoint backend.
func (s *Store) State() *State {
	return &State{s: s}
}

// Get returns the value stored for uid under key, or "" when unset.
func (st *State) Get(ctx context.Context, uid, key string) (string, error) {
	var v string
	err := st.s.db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE user_id = ? AND key = ?`, uid, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get sync state %s: %w", key, err)
	}
	return v, nil
}

// Set stores value for uid under key. An empty value clears it.
func (st *State) Set(ctx context.Context, uid, key, value string) error {
	if value == "" {
		_, err := st.s.db.ExecContext(ctx, `DELETE FROM sync_state WHERE user_id = ? AND key = ?`, uid, key)
		return err
	}
	_, err := st.s.db.ExecContext(ctx, `
		INSERT INTO sync_state (user_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		uid, key, value, st.s.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set sync state %s: %w", key, err)
	}
	return nil
}

// LastConversation returns the conversation uid had open last.
func (st *State) LastConversation(ctx context.Context, uid string) (string, error) {
	return st.Get(ctx, uid, keyLastConversation)
}

// SetLastConversation records the conversation uid has open.
func (st *State) SetLastConversation(ctx context.Context, uid, conversationID string) error {
	return st.Set(ctx, uid, keyLastConversation, conversationID)
}
