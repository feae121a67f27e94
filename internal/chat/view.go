package chat

import (
	"cmp"
	"slices"
	"strings"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
)

// StreamHealth is the state of one live subscription as shown to the UI.
// An empty list with State Degraded means "failed to load", not "nothing".
type StreamHealth struct {
	State status.State
	Err   string
}

// ViewModel is everything the presentation layer renders.
type ViewModel struct {
	Self                  *model.Identity
	ActiveConversationID  string
	Conversations         []model.Conversation
	ArchivedConversations []model.Conversation
	Messages              []model.Message
	Directory             []model.DirectoryEntry
	UnreadCounts          map[string]int

	DirectoryStatus     StreamHealth
	ConversationsStatus StreamHealth
	MessagesStatus      StreamHealth
}

// Clone returns a deep copy.
func (v ViewModel) Clone() ViewModel {
	out := v
	if v.Self != nil {
		self := *v.Self
		out.Self = &self
	}
	out.Conversations = cloneConversations(v.Conversations)
	out.ArchivedConversations = cloneConversations(v.ArchivedConversations)
	out.Messages = make([]model.Message, len(v.Messages))
	for i, m := range v.Messages {
		out.Messages[i] = m.Clone()
	}
	out.Directory = slices.Clone(v.Directory)
	out.UnreadCounts = make(map[string]int, len(v.UnreadCounts))
	for k, n := range v.UnreadCounts {
		out.UnreadCounts[k] = n
	}
	return out
}

// ActiveConversation returns the selected conversation, if it is listed.
func (v ViewModel) ActiveConversation() (model.Conversation, bool) {
	if v.ActiveConversationID == "" {
		return model.Conversation{}, false
	}
	return findConversation(v.ActiveConversationID, v.Conversations, v.ArchivedConversations)
}

func cloneConversations(in []model.Conversation) []model.Conversation {
	out := make([]model.Conversation, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}

func findConversation(id string, lists ...[]model.Conversation) (model.Conversation, bool) {
	for _, list := range lists {
		for _, c := range list {
			if c.ID == id {
				return c, true
			}
		}
	}
	return model.Conversation{}, false
}

// Partition splits convs into self's active and archived lists, each sorted
// by SortByLastMessage. Every conversation lands in exactly one list.
func Partition(self string, convs []model.Conversation) (active, archived []model.Conversation) {
	active = []model.Conversation{}
	archived = []model.Conversation{}
	for _, c := range convs {
		if c.ArchivedBy[self] {
			archived = append(archived, c)
		} else {
			active = append(active, c)
		}
	}
	SortByLastMessage(active)
	SortByLastMessage(archived)
	return active, archived
}

// SortByLastMessage orders convs by LastMessageTime, newest first. A missing
// time counts as the epoch, so those sort last. Ties break on id.
func SortByLastMessage(convs []model.Conversation) {
	slices.SortStableFunc(convs, func(a, b model.Conversation) int {
		if c := cmp.Compare(lastMillis(b), lastMillis(a)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func lastMillis(c model.Conversation) int64 {
	if c.LastMessageTime.IsZero() {
		return 0
	}
	return c.LastMessageTime.UnixMilli()
}

// SortMessages orders msgs by timestamp, oldest first, keeping store order
// for equal timestamps.
func SortMessages(msgs []model.Message) {
	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// UnreadCounts returns self's unread counter for every conversation, read
// from the counter field the sender increments.
func UnreadCounts(self string, convs ...[]model.Conversation) map[string]int {
	out := make(map[string]int)
	for _, list := range convs {
		for _, c := range list {
			out[c.ID] = max(c.UnreadCount[self], 0)
		}
	}
	return out
}

// WithoutSelf drops self's own directory entry.
func WithoutSelf(self string, entries []model.DirectoryEntry) []model.DirectoryEntry {
	out := make([]model.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ID != self {
			out = append(out, e)
		}
	}
	return out
}

// FilterDirectory keeps entries whose display name or email contains term,
// ignoring case. An empty term keeps everything.
func FilterDirectory(entries []model.DirectoryEntry, term string) []model.DirectoryEntry {
	term = strings.TrimSpace(term)
	out := make([]model.DirectoryEntry, 0, len(entries))
	for _, e := range entries {
		if containsFold(e.DisplayName, term) || containsFold(e.Email, term) {
			out = append(out, e)
		}
	}
	return out
}

// FilterConversations keeps conversations whose other participant's name or
// last message contains term, ignoring case.
func FilterConversations(self string, convs []model.Conversation, term string) []model.Conversation {
	term = strings.TrimSpace(term)
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		if containsFold(c.DisplayName(c.Other(self)), term) || containsFold(c.LastMessage, term) {
			out = append(out, c)
		}
	}
	return out
}

// LatestVisible returns the newest message that is not soft-deleted,
// ignoring skipID.
func LatestVisible(msgs []model.Message, skipID string) (model.Message, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ID != skipID && !msgs[i].IsDeleted {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
