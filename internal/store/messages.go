package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

// Messages stores the messages of every conversation.
type Messages struct {
	s *Store
}

// Messages returns the message backend.
func (s *Store) Messages() *Messages {
	return &Messages{s: s}
}

const messageColumns = `id, conversation_id, text, sender_id, sender_name, sender_photo, timestamp,
	status, is_deleted, deleted_at, deleted_by, original_text, reply_to, read`

func scanMessage(row scanner) (model.Message, error) {
	var m model.Message
	var ts, deletedAt int64
	var replyTo string
	err := row.Scan(&m.ID, &m.ConversationID, &m.Text, &m.SenderID, &m.SenderName, &m.SenderPhoto, &ts,
		&m.Status, &m.IsDeleted, &deletedAt, &m.DeletedBy, &m.OriginalText, &replyTo, &m.Read)
	if err != nil {
		return m, err
	}
	m.Timestamp = fromMillis(ts)
	m.DeletedAt = fromMillis(deletedAt)
	if replyTo != "" {
		m.ReplyTo = &model.ReplyRef{}
		if err := decodeJSON(replyTo, m.ReplyTo); err != nil {
			return m, fmt.Errorf("decode reply of %s: %w", m.ID, err)
		}
	}
	return m, nil
}

// Append stores a new message with a server timestamp and returns its id.
func (ms *Messages) Append(ctx context.Context, conversationID string, m model.Message) (string, error) {
	if m.SenderID == "" {
		return "", fmt.Errorf("append message: empty sender")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	var replyTo string
	if m.ReplyTo != nil {
		var err error
		if replyTo, err = encodeJSON(m.ReplyTo); err != nil {
			return "", fmt.Errorf("encode reply: %w", err)
		}
	}

	err := ms.s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, conversationID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, conversationID, m.Text, m.SenderID, m.SenderName, m.SenderPhoto, ms.s.Now().UnixMilli(),
			m.Status, m.IsDeleted, toMillis(m.DeletedAt), m.DeletedBy, m.OriginalText, replyTo, m.Read)
		if isUniqueViolation(err) {
			return fmt.Errorf("message %s: %w", m.ID, ErrConflict)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	ms.s.notify(bus.MessagesChanged(conversationID))
	return m.ID, nil
}

// Get returns one message of a conversation.
func (ms *Messages) Get(ctx context.Context, conversationID, messageID string) (model.Message, error) {
	m, err := scanMessage(ms.s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return m, err
}

// List returns the messages of a conversation, oldest first. Messages that
// share a timestamp keep insertion order.
func (ms *Messages) List(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := ms.s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, seq ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Subscribe streams the messages of a conversation.
func (ms *Messages) Subscribe(ctx context.Context, conversationID string) (<-chan model.Snapshot[model.Message], error) {
	return watch(ctx, ms.s, bus.MessagesNamespace(conversationID), func(ctx context.Context) ([]model.Message, error) {
		return ms.List(ctx, conversationID)
	})
}

// UpdateFields applies field-path updates to one message.
func (ms *Messages) UpdateFields(ctx context.Context, conversationID, messageID string, updates []model.Update) error {
	now := ms.s.Now()
	err := ms.s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := scanMessage(tx.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		for _, u := range updates {
			if err := model.ApplyMessage(&m, u, now); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE messages SET text = ?, status = ?, is_deleted = ?, deleted_at = ?, deleted_by = ?,
				original_text = ?, read = ?
			WHERE id = ?`,
			m.Text, m.Status, m.IsDeleted, toMillis(m.DeletedAt), m.DeletedBy, m.OriginalText, m.Read, messageID)
		return err
	})
	if err != nil {
		return err
	}
	ms.s.notify(bus.MessagesChanged(conversationID))
	return nil
}

// Delete removes a message permanently.
func (ms *Messages) Delete(ctx context.Context, conversationID, messageID string) error {
	res, err := ms.s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ? AND id = ?`, conversationID, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	ms.s.notify(bus.MessagesChanged(conversationID))
	return nil
}
