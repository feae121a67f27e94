package chat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/model"
)

func (c *Core) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.WriteTimeout)
}

// selfLocked returns a copy of the signed-in identity or NotAuthenticated.
func (c *Core) selfLocked(op string) (model.Identity, error) {
	if c.self == nil {
		return model.Identity{}, unauthenticated(op)
	}
	return *c.self, nil
}

// lookupLocked finds a conversation in the latest snapshot or among those
// this core created that no snapshot has carried yet.
func (c *Core) lookupLocked(id string) (model.Conversation, bool) {
	for _, conv := range c.overlay.conversations(c.conversations) {
		if conv.ID == id {
			return conv, true
		}
	}
	conv, ok := c.created[id]
	return conv, ok
}

// optimistic lays updates over the view, runs write and settles the edit:
// rolled back when write fails, acknowledged when it succeeds.
func (c *Core) optimistic(e *edit, write func() error) error {
	c.mu.Lock()
	e.at = c.now()
	seq := c.overlay.add(e)
	c.recomputeLocked()
	c.mu.Unlock()

	err := write()

	c.mu.Lock()
	if err != nil {
		c.overlay.remove(seq)
	} else {
		c.overlay.ack(seq)
	}
	c.recomputeLocked()
	c.mu.Unlock()
	return err
}

// Select opens conversationID and closes the previous message stream first.
// An empty id clears the selection.
func (c *Core) Select(ctx context.Context, conversationID string) error {
	const op = "select"
	c.mu.Lock()
	self, err := c.selfLocked(op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if conversationID != "" {
		if _, ok := c.lookupLocked(conversationID); !ok {
			c.mu.Unlock()
			return notFound(op, "conversation %s", conversationID)
		}
	}
	c.restore = ""
	c.selectLocked(conversationID)
	c.recomputeLocked()
	c.mu.Unlock()

	c.saveLastConversation(ctx, self.ID, conversationID)
	return nil
}

// StartConversation opens the conversation with other, creating it when the
// pair has none. An archived match is unarchived first.
func (c *Core) StartConversation(ctx context.Context, other model.DirectoryEntry) (string, error) {
	const op = "start conversation"
	c.mu.Lock()
	self, err := c.selfLocked(op)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	if other.ID == "" {
		c.mu.Unlock()
		return "", invalid(op, "no user given")
	}
	if other.ID == self.ID {
		c.mu.Unlock()
		return "", invalid(op, "cannot start a conversation with yourself")
	}

	var existing *model.Conversation
	for _, conv := range c.overlay.conversations(c.conversations) {
		if conv.IsPair(self.ID, other.ID) {
			existing = &conv
			break
		}
	}
	if existing == nil {
		for _, conv := range c.created {
			if conv.IsPair(self.ID, other.ID) {
				existing = &conv
				break
			}
		}
	}
	c.mu.Unlock()

	if existing != nil {
		if existing.ArchivedBy[self.ID] {
			if err := c.setArchived(ctx, op, self, existing.ID, false); err != nil {
				return "", err
			}
		}
		return existing.ID, c.open(ctx, self, existing.ID)
	}

	conv := model.Conversation{
		Participants: [2]string{self.ID, other.ID},
		ParticipantDetails: map[string]model.ParticipantDetail{
			self.ID:  {Name: self.Name(), Photo: self.PhotoURL},
			other.ID: {Name: other.Name(), Photo: other.PhotoURL},
		},
		ArchivedBy:  map[string]bool{},
		MutedBy:     map[string]bool{},
		ReadBy:      map[string]time.Time{},
		UnreadCount: map[string]int{self.ID: 0, other.ID: 0},
	}
	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	id, err := c.convs.Create(wctx, conv)
	if err != nil {
		return "", backend(op, err, c.gone)
	}
	conv.ID = id
	c.log.Info("conversation started", zap.String("conversation_id", id), zap.String("with", other.ID))

	c.mu.Lock()
	if !containsConversation(c.conversations, id) {
		c.created[id] = conv
	}
	c.mu.Unlock()
	return id, c.open(ctx, self, id)
}

func (c *Core) open(ctx context.Context, self model.Identity, id string) error {
	c.mu.Lock()
	if c.self == nil || c.self.ID != self.ID {
		c.mu.Unlock()
		return unauthenticated("select")
	}
	c.restore = ""
	c.selectLocked(id)
	c.recomputeLocked()
	c.mu.Unlock()
	c.saveLastConversation(ctx, self.ID, id)
	return nil
}

// SendMessage appends text to the active conversation, optionally quoting
// replyTo, then updates the conversation summary and the other
// participant's unread counter. Nothing is shown before the store confirms.
//
// When the message is stored but the summary write fails, SendMessage returns
// the new message id together with the error. The message is sent in that
// case; only the conversation list preview and unread counter are stale.
func (c *Core) SendMessage(ctx context.Context, text string, replyTo *model.Message) (string, error) {
	const op = "send message"
	text = strings.TrimSpace(text)

	c.mu.Lock()
	self, err := c.selfLocked(op)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	if text == "" {
		c.mu.Unlock()
		return "", invalid(op, "message is empty")
	}
	if c.active == "" {
		c.mu.Unlock()
		return "", invalid(op, "no conversation selected")
	}
	activeID := c.active
	conv, ok := c.lookupLocked(activeID)
	c.mu.Unlock()
	if !ok {
		return "", notFound(op, "conversation %s", activeID)
	}
	if replyTo != nil && replyTo.ConversationID != "" && replyTo.ConversationID != conv.ID {
		return "", invalid(op, "reply target belongs to another conversation")
	}

	msg := model.Message{
		Text:        text,
		SenderID:    self.ID,
		SenderName:  self.Name(),
		SenderPhoto: self.PhotoURL,
		Status:      model.StatusSent,
	}
	if replyTo != nil {
		msg.ReplyTo = replyTo.Ref()
	}

	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	id, err := c.msgs.Append(wctx, conv.ID, msg)
	if err != nil {
		return "", backend(op, err, c.gone)
	}

	err = c.convs.UpdateFields(wctx, conv.ID, []model.Update{
		model.Set(model.FieldLastMessage, text),
		model.Set(model.FieldLastMessageTime, model.ServerTimestamp),
		model.Set(model.FieldLastMessageSender, self.ID),
		model.SetKey(model.FieldUnreadCount, conv.Other(self.ID), model.Increment(1)),
	})
	if err != nil {
		return id, backend(op, err, c.gone)
	}
	return id, nil
}

// DeleteMessage soft-deletes a message of the active conversation: the
// document stays addressable and its text becomes a tombstone. Deleting the
// newest message also rewrites the conversation summary from the nearest
// earlier message that is still visible.
func (c *Core) DeleteMessage(ctx context.Context, messageID string) error {
	const op = "delete message"
	c.mu.Lock()
	self, err := c.selfLocked(op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.active == "" || c.msgFor != c.active {
		c.mu.Unlock()
		return invalid(op, "no conversation selected")
	}
	convID := c.active
	msgs := c.overlay.messages(convID, c.messages)
	c.mu.Unlock()

	idx := -1
	for i, m := range msgs {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return notFound(op, "message %s", messageID)
	}
	target := msgs[idx]
	if target.IsDeleted {
		return nil
	}

	wctx, cancel := c.writeCtx(ctx)
	defer cancel()

	msgEdit := &edit{
		target:         targetMessage,
		conversationID: convID,
		messageID:      messageID,
		updates: []model.Update{
			model.Set(model.FieldIsDeleted, true),
			model.Set(model.FieldDeletedAt, model.ServerTimestamp),
			model.Set(model.FieldDeletedBy, self.ID),
			model.Set(model.FieldOriginalText, target.Text),
			model.Set(model.FieldText, model.TombstoneText),
		},
	}
	err = c.optimistic(msgEdit, func() error {
		return c.msgs.UpdateFields(wctx, convID, messageID, msgEdit.updates)
	})
	if err != nil {
		return backend(op, err, c.gone)
	}

	if idx != len(msgs)-1 {
		return nil
	}

	var summary []model.Update
	if prev, ok := LatestVisible(msgs[:idx], ""); ok {
		summary = []model.Update{
			model.Set(model.FieldLastMessage, prev.Text),
			model.Set(model.FieldLastMessageTime, prev.Timestamp),
			model.Set(model.FieldLastMessageSender, prev.SenderID),
		}
	} else {
		summary = []model.Update{
			model.Set(model.FieldLastMessage, ""),
			model.Set(model.FieldLastMessageTime, model.ServerTimestamp),
			model.Set(model.FieldLastMessageSender, self.ID),
		}
	}
	convEdit := &edit{target: targetConversation, conversationID: convID, updates: summary}
	err = c.optimistic(convEdit, func() error {
		return c.convs.UpdateFields(wctx, convID, summary)
	})
	if err != nil {
		return backend(op, err, c.gone)
	}
	return nil
}

// PermanentlyDeleteMessage removes a message of the active conversation.
// Replies quoting it keep their copy of the text.
func (c *Core) PermanentlyDeleteMessage(ctx context.Context, messageID string) error {
	const op = "permanently delete message"
	c.mu.Lock()
	_, err := c.selfLocked(op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.active == "" {
		c.mu.Unlock()
		return invalid(op, "no conversation selected")
	}
	convID := c.active
	c.mu.Unlock()
	if messageID == "" {
		return invalid(op, "no message given")
	}

	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	if err := c.msgs.Delete(wctx, convID, messageID); err != nil {
		return backend(op, err, c.gone)
	}
	c.log.Info("message removed", zap.String("conversation_id", convID), zap.String("msg_id", messageID))
	return nil
}

// ArchiveConversation hides conversationID from self's active list. Archiving
// the active conversation clears the selection once the write succeeds.
func (c *Core) ArchiveConversation(ctx context.Context, conversationID string) error {
	const op = "archive conversation"
	self, err := c.target(op, conversationID)
	if err != nil {
		return err
	}
	if err := c.setArchived(ctx, op, self, conversationID, true); err != nil {
		return err
	}

	c.mu.Lock()
	cleared := c.active == conversationID
	if cleared {
		c.selectLocked("")
		c.recomputeLocked()
	}
	c.mu.Unlock()
	if cleared {
		c.saveLastConversation(ctx, self.ID, "")
	}
	return nil
}

// UnarchiveConversation returns conversationID to self's active list.
func (c *Core) UnarchiveConversation(ctx context.Context, conversationID string) error {
	const op = "unarchive conversation"
	self, err := c.target(op, conversationID)
	if err != nil {
		return err
	}
	return c.setArchived(ctx, op, self, conversationID, false)
}

func (c *Core) setArchived(ctx context.Context, op string, self model.Identity, id string, archived bool) error {
	return c.setFlags(ctx, op, id, model.SetKey(model.FieldArchivedBy, self.ID, archived))
}

// MuteConversation sets self's muted flag on conversationID.
func (c *Core) MuteConversation(ctx context.Context, conversationID string) error {
	return c.setMuted(ctx, "mute conversation", conversationID, true)
}

// UnmuteConversation clears self's muted flag on conversationID.
func (c *Core) UnmuteConversation(ctx context.Context, conversationID string) error {
	return c.setMuted(ctx, "unmute conversation", conversationID, false)
}

func (c *Core) setMuted(ctx context.Context, op, id string, muted bool) error {
	self, err := c.target(op, id)
	if err != nil {
		return err
	}
	return c.setFlags(ctx, op, id, model.SetKey(model.FieldMutedBy, self.ID, muted))
}

// MarkMessagesAsRead stamps self's read marker on conversationID and resets
// self's unread counter. Individual messages are not touched.
func (c *Core) MarkMessagesAsRead(ctx context.Context, conversationID string) error {
	const op = "mark as read"
	self, err := c.target(op, conversationID)
	if err != nil {
		return err
	}
	return c.setFlags(ctx, op, conversationID,
		model.SetKey(model.FieldReadBy, self.ID, model.ServerTimestamp),
		model.SetKey(model.FieldUnreadCount, self.ID, 0),
	)
}

// target validates a command addressed at a known conversation.
func (c *Core) target(op, id string) (model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	self, err := c.selfLocked(op)
	if err != nil {
		return self, err
	}
	if id == "" {
		return self, invalid(op, "no conversation given")
	}
	if _, ok := c.lookupLocked(id); !ok {
		return self, notFound(op, "conversation %s", id)
	}
	return self, nil
}

// setFlags writes per-user conversation flags with an optimistic overlay.
func (c *Core) setFlags(ctx context.Context, op, id string, updates ...model.Update) error {
	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	e := &edit{target: targetConversation, conversationID: id, updates: updates}
	err := c.optimistic(e, func() error {
		return c.convs.UpdateFields(wctx, id, updates)
	})
	if err != nil {
		c.log.Warn(op+" failed", zap.String("conversation_id", id), zap.Error(err))
		return backend(op, err, c.gone)
	}
	return nil
}

// DeleteConversation removes conversationID and all of its messages for
// both participants.
func (c *Core) DeleteConversation(ctx context.Context, conversationID string) error {
	const op = "delete conversation"
	self, err := c.target(op, conversationID)
	if err != nil {
		return err
	}

	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	if err := c.convs.Delete(wctx, conversationID); err != nil {
		return backend(op, err, c.gone)
	}

	c.mu.Lock()
	delete(c.created, conversationID)
	cleared := c.active == conversationID
	if cleared {
		c.selectLocked("")
		c.recomputeLocked()
	}
	c.mu.Unlock()
	if cleared {
		c.saveLastConversation(ctx, self.ID, "")
	}
	return nil
}

// UpdateProfile changes self's display name or photo through the identity
// provider. The new identity arrives on the identity stream.
func (c *Core) UpdateProfile(ctx context.Context, p model.ProfileUpdate) (*model.Identity, error) {
	const op = "update profile"
	c.mu.Lock()
	_, err := c.selfLocked(op)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if p.DisplayName == nil && p.PhotoURL == nil {
		return nil, invalid(op, "nothing to update")
	}
	if p.DisplayName != nil {
		name := strings.TrimSpace(*p.DisplayName)
		if name == "" {
			return nil, invalid(op, "display name is empty")
		}
		p.DisplayName = &name
	}

	wctx, cancel := c.writeCtx(ctx)
	defer cancel()
	id, err := c.ident.UpdateProfile(wctx, p)
	if err != nil {
		return nil, backend(op, err, c.gone)
	}
	return id, nil
}

// SearchDirectory filters the directory by display name or email.
func (c *Core) SearchDirectory(term string) []model.DirectoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return FilterDirectory(c.view.Directory, term)
}

// FilterConversations filters the active or archived list by the other
// participant's name or the last message.
func (c *Core) FilterConversations(term string, archived bool) []model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.Self == nil {
		return []model.Conversation{}
	}
	list := c.view.Conversations
	if archived {
		list = c.view.ArchivedConversations
	}
	return cloneConversations(FilterConversations(c.view.Self.ID, list, term))
}
