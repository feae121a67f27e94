package chat

import (
	"context"

	"github.com/matheus3301/dmsync/internal/model"
)

// DirectoryStore lists every known user. Entries for the signed-in user are
// filtered out by the core.
type DirectoryStore interface {
	SubscribeAll(ctx context.Context) (<-chan model.Snapshot[model.DirectoryEntry], error)
	Upsert(ctx context.Context, id string, updates []model.Update) error
}

// ConversationStore holds two-party conversations.
type ConversationStore interface {
	SubscribeByParticipant(ctx context.Context, uid string) (<-chan model.Snapshot[model.Conversation], error)
	// Create returns the existing id when the participant pair already has a
	// conversation.
	Create(ctx context.Context, c model.Conversation) (string, error)
	UpdateFields(ctx context.Context, id string, updates []model.Update) error
	Delete(ctx context.Context, id string) error
}

// MessageStore holds the messages of each conversation, ascending by the
// timestamp it assigns on Append.
type MessageStore interface {
	Subscribe(ctx context.Context, conversationID string) (<-chan model.Snapshot[model.Message], error)
	Append(ctx context.Context, conversationID string, m model.Message) (string, error)
	UpdateFields(ctx context.Context, conversationID, messageID string, updates []model.Update) error
	Delete(ctx context.Context, conversationID, messageID string) error
}

// IdentitySource reports the signed-in user. Watch emits the current value
// first and then every change; nil means signed out.
type IdentitySource interface {
	Current() *model.Identity
	Watch(ctx context.Context) <-chan *model.Identity
	UpdateProfile(ctx context.Context, p model.ProfileUpdate) (*model.Identity, error)
}

// StateStore persists the last open conversation per user.
type StateStore interface {
	LastConversation(ctx context.Context, uid string) (string, error)
	SetLastConversation(ctx context.Context, uid, conversationID string) error
}
