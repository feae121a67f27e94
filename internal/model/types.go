package model

import "time"

// Message delivery states carried on every message document.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// TombstoneText replaces the body of a soft-deleted message.
const TombstoneText = "This message was deleted"

// UnknownName is used when neither a display name nor an email is known.
const UnknownName = "Unknown User"

// Identity is the signed-in user as reported by the identity provider.
type Identity struct {
	ID          string
	DisplayName string
	PhotoURL    string
	Email       string
}

// Name returns the display name, falling back to the email and then UnknownName.
func (i *Identity) Name() string {
	if i == nil {
		return UnknownName
	}
	return fallbackName(i.DisplayName, i.Email)
}

// ProfileUpdate carries profile edits. Nil fields are left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// DirectoryEntry is a known user as listed in the directory.
type DirectoryEntry struct {
	ID          string
	DisplayName string
	PhotoURL    string
	Email       string
	IsOnline    bool
	LastSeen    time.Time
}

// Name returns the display name, falling back to the email and then UnknownName.
func (d DirectoryEntry) Name() string {
	return fallbackName(d.DisplayName, d.Email)
}

// ParticipantDetail is the denormalized name/photo of a participant.
type ParticipantDetail struct {
	Name  string `json:"name"`
	Photo string `json:"photo"`
}

// Conversation is a direct conversation between exactly two users.
type Conversation struct {
	ID                 string
	Participants       [2]string
	ParticipantDetails map[string]ParticipantDetail
	LastMessage        string
	LastMessageTime    time.Time
	LastMessageSender  string
	ArchivedBy         map[string]bool
	MutedBy            map[string]bool
	ReadBy             map[string]time.Time
	UnreadCount        map[string]int
	CreatedAt          time.Time
}

// HasParticipant reports whether uid is one of the two participants.
func (c *Conversation) HasParticipant(uid string) bool {
	return uid != "" && (c.Participants[0] == uid || c.Participants[1] == uid)
}

// IsPair reports whether the conversation is between a and b, in either order.
func (c *Conversation) IsPair(a, b string) bool {
	return c.HasParticipant(a) && c.HasParticipant(b)
}

// Other returns the participant that is not self.
func (c *Conversation) Other(self string) string {
	if c.Participants[0] == self {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// DisplayName returns the denormalized name of uid, or uid itself.
func (c *Conversation) DisplayName(uid string) string {
	if d, ok := c.ParticipantDetails[uid]; ok && d.Name != "" {
		return d.Name
	}
	return uid
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	out.ParticipantDetails = cloneMap(c.ParticipantDetails)
	out.ArchivedBy = cloneMap(c.ArchivedBy)
	out.MutedBy = cloneMap(c.MutedBy)
	out.ReadBy = cloneMap(c.ReadBy)
	out.UnreadCount = cloneMap(c.UnreadCount)
	return out
}

// ReplyRef is the quoted copy of the message a reply points at.
type ReplyRef struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	SenderName string `json:"senderName"`
	SenderID   string `json:"senderId"`
}

// Message belongs to exactly one conversation.
type Message struct {
	ID             string
	ConversationID string
	Text           string
	SenderID       string
	SenderName     string
	SenderPhoto    string
	Timestamp      time.Time
	Status         string
	IsDeleted      bool
	DeletedAt      time.Time
	DeletedBy      string
	OriginalText   string
	ReplyTo        *ReplyRef
	Read           bool
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	return out
}

// Ref builds the reply reference that quotes this message.
func (m *Message) Ref() *ReplyRef {
	return &ReplyRef{
		ID:         m.ID,
		Text:       m.Text,
		SenderName: m.SenderName,
		SenderID:   m.SenderID,
	}
}

// PairKey returns an order-independent key for a participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Snapshot is one emission of a live query. A non-nil Err ends the stream.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

func fallbackName(name, email string) string {
	if name != "" {
		return name
	}
	if email != "" {
		return email
	}
	return UnknownName
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
