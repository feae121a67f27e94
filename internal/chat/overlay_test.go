package chat

import (
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
)

func TestOverlayLifecycle(t *testing.T) {
	var o overlay
	base := []model.Conversation{{ID: "c1", Participants: [2]string{"me", "you"}}}
	at := time.UnixMilli(1000)

	pending := o.add(&edit{target: targetConversation, conversationID: "c1", at: at,
		updates: []model.Update{model.SetKey(model.FieldArchivedBy, "me", true)}})
	acked := o.add(&edit{target: targetConversation, conversationID: "c1", at: at,
		updates: []model.Update{model.SetKey(model.FieldReadBy, "me", model.ServerTimestamp)}})
	o.ack(acked)

	got := o.conversations(base)
	if !got[0].ArchivedBy["me"] || !got[0].ReadBy["me"].Equal(at) {
		t.Errorf("overlay not applied: %+v", got[0])
	}
	if base[0].ArchivedBy != nil {
		t.Error("overlay mutated the snapshot")
	}

	o.settle(targetMessage)
	if o.len() != 2 {
		t.Fatalf("message settle dropped conversation edits: %d left", o.len())
	}
	o.settle(targetConversation)
	if o.len() != 1 {
		t.Fatalf("after settle %d edits, want the pending one", o.len())
	}

	o.remove(pending)
	if o.len() != 0 {
		t.Errorf("after remove %d edits, want 0", o.len())
	}
	if got := o.conversations(base); got[0].ArchivedBy["me"] {
		t.Error("rolled back edit still applied")
	}
}

func TestOverlayMessagesScopedToConversation(t *testing.T) {
	var o overlay
	o.add(&edit{target: targetMessage, conversationID: "c1", messageID: "m1",
		updates: []model.Update{model.Set(model.FieldIsDeleted, true), model.Set(model.FieldText, model.TombstoneText)}})

	msgs := []model.Message{{ID: "m1", Text: "hi"}}
	if got := o.messages("c1", msgs); !got[0].IsDeleted || got[0].Text != model.TombstoneText {
		t.Errorf("edit not applied: %+v", got[0])
	}
	if got := o.messages("c2", msgs); got[0].IsDeleted {
		t.Error("edit leaked into another conversation")
	}
	if msgs[0].IsDeleted {
		t.Error("overlay mutated the snapshot")
	}
}
