package chat

import (
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

type editTarget int

const (
	targetConversation editTarget = iota
	targetMessage
)

// edit is one optimistic change laid over the latest snapshot.
type edit struct {
	seq            uint64
	target         editTarget
	conversationID string
	messageID      string
	updates        []model.Update
	at             time.Time
	acked          bool
}

// overlay holds optimistic edits. A pending edit stays until its write
// returns: failure removes it, success marks it acknowledged. Acknowledged
// edits are dropped by the next snapshot of the same target kind, which
// already carries the written values.
type overlay struct {
	next  uint64
	edits []*edit
}

func (o *overlay) add(e *edit) uint64 {
	o.next++
	e.seq = o.next
	o.edits = append(o.edits, e)
	return e.seq
}

func (o *overlay) remove(seq uint64) {
	for i, e := range o.edits {
		if e.seq == seq {
			o.edits = append(o.edits[:i], o.edits[i+1:]...)
			return
		}
	}
}

func (o *overlay) ack(seq uint64) {
	for _, e := range o.edits {
		if e.seq == seq {
			e.acked = true
			return
		}
	}
}

// settle drops acknowledged edits of target after a fresh snapshot arrived.
func (o *overlay) settle(target editTarget) {
	kept := o.edits[:0]
	for _, e := range o.edits {
		if e.target == target && e.acked {
			continue
		}
		kept = append(kept, e)
	}
	o.edits = kept
}

func (o *overlay) reset() {
	o.edits = nil
}

func (o *overlay) len() int {
	return len(o.edits)
}

// conversations returns a copy of convs with every conversation edit applied.
func (o *overlay) conversations(convs []model.Conversation) []model.Conversation {
	out := cloneConversations(convs)
	for _, e := range o.edits {
		if e.target != targetConversation {
			continue
		}
		for i := range out {
			if out[i].ID != e.conversationID {
				continue
			}
			for _, u := range e.updates {
				_ = model.ApplyConversation(&out[i], u, e.at)
			}
		}
	}
	return out
}

// messages returns a copy of msgs with the message edits of conversationID applied.
func (o *overlay) messages(conversationID string, msgs []model.Message) []model.Message {
	out := make([]model.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	for _, e := range o.edits {
		if e.target != targetMessage || e.conversationID != conversationID {
			continue
		}
		for i := range out {
			if out[i].ID != e.messageID {
				continue
			}
			for _, u := range e.updates {
				_ = model.ApplyMessage(&out[i], u, e.at)
			}
		}
	}
	return out
}
