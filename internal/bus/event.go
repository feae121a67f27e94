package bus

import "time"

// Event is a change notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Scoped kinds embed an id between a namespace and a suffix so a
// prefix subscription never matches a longer id by accident.
const (
	KindUsersChanged    = "store.users.changed"
	KindExternalChanged = "store.external.changed"
	KindIdentityChanged = "identity.changed"
	KindViewChanged     = "view.changed"
	KindStreamStatus    = "stream.status_changed"
)

// ConversationsNamespace is the prefix matching conversation changes visible to uid.
func ConversationsNamespace(uid string) string {
	return "store.conversations." + uid + "."
}

// ConversationsChanged is the kind published when a conversation of uid changes.
func ConversationsChanged(uid string) string {
	return ConversationsNamespace(uid) + "changed"
}

// MessagesNamespace is the prefix matching message changes in a conversation.
func MessagesNamespace(conversationID string) string {
	return "store.messages." + conversationID + "."
}

// MessagesChanged is the kind published when a conversation's messages change.
func MessagesChanged(conversationID string) string {
	return MessagesNamespace(conversationID) + "changed"
}
