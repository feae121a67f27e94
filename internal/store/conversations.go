package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

// Conversations stores two-party conversations, unique per participant pair.
type Conversations struct {
	s *Store
}

// Conversations returns the conversation backend.
func (s *Store) Conversations() *Conversations {
	return &Conversations{s: s}
}

const conversationColumns = `id, participant_a, participant_b, participant_details, last_message,
	last_message_time, last_message_sender, archived_by, muted_by, read_by, unread_count, created_at`

type conversationRow struct {
	model.Conversation
	details, archived, muted, readBy, unread string
	lastTime, created                        int64
}

func scanConversation(row scanner) (model.Conversation, error) {
	var r conversationRow
	c := &r.Conversation
	err := row.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &r.details, &c.LastMessage,
		&r.lastTime, &c.LastMessageSender, &r.archived, &r.muted, &r.readBy, &r.unread, &r.created)
	if err != nil {
		return model.Conversation{}, err
	}
	c.LastMessageTime = fromMillis(r.lastTime)
	c.CreatedAt = fromMillis(r.created)

	readMillis := map[string]int64{}
	for _, d := range []struct {
		src string
		dst any
	}{
		{r.details, &c.ParticipantDetails},
		{r.archived, &c.ArchivedBy},
		{r.muted, &c.MutedBy},
		{r.readBy, &readMillis},
		{r.unread, &c.UnreadCount},
	} {
		if err := decodeJSON(d.src, d.dst); err != nil {
			return model.Conversation{}, fmt.Errorf("decode conversation %s: %w", c.ID, err)
		}
	}
	if len(readMillis) > 0 {
		c.ReadBy = make(map[string]time.Time, len(readMillis))
		for uid, ms := range readMillis {
			c.ReadBy[uid] = fromMillis(ms)
		}
	}
	return *c, nil
}

// encodedMaps holds the JSON columns of a conversation.
type encodedMaps struct {
	details, archived, muted, readBy, unread string
}

func encodeConversationMaps(c *model.Conversation) (encodedMaps, error) {
	readMillis := make(map[string]int64, len(c.ReadBy))
	for uid, t := range c.ReadBy {
		readMillis[uid] = toMillis(t)
	}
	var e encodedMaps
	var err error
	for _, f := range []struct {
		dst *string
		src any
	}{
		{&e.details, nonNil(c.ParticipantDetails)},
		{&e.archived, nonNil(c.ArchivedBy)},
		{&e.muted, nonNil(c.MutedBy)},
		{&e.readBy, readMillis},
		{&e.unread, nonNil(c.UnreadCount)},
	} {
		if *f.dst, err = encodeJSON(f.src); err != nil {
			return e, err
		}
	}
	return e, nil
}

func nonNil[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

func (cs *Conversations) notifyParticipants(c *model.Conversation, extra ...string) {
	cs.s.notify(append([]string{
		bus.ConversationsChanged(c.Participants[0]),
		bus.ConversationsChanged(c.Participants[1]),
	}, extra...)...)
}

// Create inserts a conversation. When one already exists for the same
// participant pair, nothing is written and the existing id is returned.
func (cs *Conversations) Create(ctx context.Context, c model.Conversation) (string, error) {
	a, b := c.Participants[0], c.Participants[1]
	if a == "" || b == "" || a == b {
		return "", fmt.Errorf("create conversation: need two distinct participants, got %q and %q", a, b)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = cs.s.Now()
	}
	maps, err := encodeConversationMaps(&c)
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}

	var id string
	var created bool
	err = cs.s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (`+conversationColumns+`, pair_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(pair_key) DO NOTHING`,
			c.ID, a, b, maps.details, c.LastMessage, toMillis(c.LastMessageTime), c.LastMessageSender,
			maps.archived, maps.muted, maps.readBy, maps.unread, toMillis(c.CreatedAt), model.PairKey(a, b))
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}
		n, _ := res.RowsAffected()
		created = n > 0
		return tx.QueryRowContext(ctx, `SELECT id FROM conversations WHERE pair_key = ?`, model.PairKey(a, b)).Scan(&id)
	})
	if err != nil {
		return "", err
	}
	if created {
		cs.notifyParticipants(&c)
	} else {
		cs.s.log.Debug("conversation exists for pair", zap.String("conversation_id", id))
	}
	return id, nil
}

// Get returns the conversation with id.
func (cs *Conversations) Get(ctx context.Context, id string) (model.Conversation, error) {
	c, err := scanConversation(cs.s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return c, err
}

// ListByParticipant returns every conversation uid takes part in, most
// recent activity first.
func (cs *Conversations) ListByParticipant(ctx context.Context, uid string) ([]model.Conversation, error) {
	rows, err := cs.s.db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE participant_a = ? OR participant_b = ?
		ORDER BY last_message_time DESC, id`, uid, uid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SubscribeByParticipant streams the conversations of uid.
func (cs *Conversations) SubscribeByParticipant(ctx context.Context, uid string) (<-chan model.Snapshot[model.Conversation], error) {
	return watch(ctx, cs.s, bus.ConversationsNamespace(uid), func(ctx context.Context) ([]model.Conversation, error) {
		return cs.ListByParticipant(ctx, uid)
	})
}

// UpdateFields applies field-path updates to one conversation.
func (cs *Conversations) UpdateFields(ctx context.Context, id string, updates []model.Update) error {
	now := cs.s.Now()
	var c model.Conversation
	err := cs.s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		c, err = scanConversation(tx.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		for _, u := range updates {
			if err := model.ApplyConversation(&c, u, now); err != nil {
				return err
			}
		}
		maps, err := encodeConversationMaps(&c)
		if err != nil {
			return fmt.Errorf("encode conversation: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE conversations SET participant_details = ?, last_message = ?, last_message_time = ?,
				last_message_sender = ?, archived_by = ?, muted_by = ?, read_by = ?, unread_count = ?
			WHERE id = ?`,
			maps.details, c.LastMessage, toMillis(c.LastMessageTime), c.LastMessageSender,
			maps.archived, maps.muted, maps.readBy, maps.unread, id)
		return err
	})
	if err != nil {
		return err
	}
	cs.notifyParticipants(&c)
	return nil
}

// Delete removes a conversation and, through the foreign key, its messages.
func (cs *Conversations) Delete(ctx context.Context, id string) error {
	c, err := cs.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := cs.s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	cs.notifyParticipants(&c, bus.MessagesChanged(id))
	return nil
}
