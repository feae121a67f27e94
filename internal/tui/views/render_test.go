package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/tui/ui"
)

func TestBuildConversationRows(t *testing.T) {
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.Local)
	convs := []model.Conversation{
		{
			ID:                 "c1",
			Participants:       [2]string{"me", "ada"},
			ParticipantDetails: map[string]model.ParticipantDetail{"ada": {Name: "Ada"}},
			LastMessage:        "see you",
			LastMessageTime:    now.Add(-time.Hour),
			LastMessageSender:  "me",
			UnreadCount:        map[string]int{"me": 0, "ada": 2},
		},
		{
			ID:           "c2",
			Participants: [2]string{"bob", "me"},
			MutedBy:      map[string]bool{"me": true},
			UnreadCount:  map[string]int{"me": 3},
		},
	}

	rows := BuildConversationRows("me", convs, map[string]bool{"ada": true}, now)
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	if rows[0].Name != "Ada" || rows[0].Preview != "You: see you" || rows[0].Time != "17:00" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if !rows[0].Online || rows[0].Unread != 0 {
		t.Errorf("row 0 online/unread = %v/%d", rows[0].Online, rows[0].Unread)
	}
	if rows[1].Name != "bob" || rows[1].Preview != "No messages yet" {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if !rows[1].Muted || rows[1].Unread != 3 || rows[1].Online {
		t.Errorf("row 1 flags = %+v", rows[1])
	}
}

func TestRenderThread(t *testing.T) {
	theme := ui.DefaultTheme()
	now := time.Date(2024, 3, 10, 18, 0, 0, 0, time.Local)
	at := func(min int) time.Time { return now.Add(-time.Hour + time.Duration(min)*time.Minute) }

	conv := model.Conversation{
		ID:           "c1",
		Participants: [2]string{"me", "ada"},
		ReadBy:       map[string]time.Time{"ada": at(1)},
	}
	msgs := []model.Message{
		{ID: "m1", SenderID: "me", Text: "hello", Timestamp: at(0), Status: model.StatusSent},
		{ID: "m2", SenderID: "me", Text: "there", Timestamp: at(2), Status: model.StatusSent},
		{ID: "m3", SenderID: "ada", SenderName: "Ada", Text: "hi [you]", Timestamp: at(3),
			ReplyTo: &model.ReplyRef{ID: "m1", Text: "hello", SenderID: "me"}},
		{ID: "m4", SenderID: "ada", SenderName: "Ada", Text: "oops", Timestamp: at(20), IsDeleted: true},
	}

	out := RenderThread(theme, "me", conv, msgs, now)

	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		if !strings.Contains(out, `["`+id+`"]`) {
			t.Errorf("missing region for %s", id)
		}
	}
	if n := strings.Count(out, "You[-:-:-]"); n != 1 {
		t.Errorf("own header printed %d times, want 1", n)
	}
	if n := strings.Count(out, "Ada[-:-:-]"); n != 2 {
		t.Errorf("peer header printed %d times, want 2 (gap over five minutes)", n)
	}
	if !strings.Contains(out, "┃ You: hello") {
		t.Error("reply quote not rendered")
	}
	if !strings.Contains(out, model.TombstoneText) || strings.Contains(out, "oops") {
		t.Error("deleted message not replaced by the tombstone")
	}
	if !strings.Contains(out, "hi [you[]") {
		t.Error("message text not escaped")
	}

	m1 := out[strings.Index(out, `["m1"]`):strings.Index(out, `["m2"]`)]
	if !strings.Contains(m1, "✓✓") {
		t.Errorf("m1 read by peer should show the read mark: %q", m1)
	}
	m2 := out[strings.Index(out, `["m2"]`):strings.Index(out, `["m3"]`)]
	if strings.Contains(m2, "✓✓") || !strings.Contains(m2, "✓") {
		t.Errorf("m2 should show a single sent mark: %q", m2)
	}
}

func TestRenderHelpAligns(t *testing.T) {
	out := RenderHelp(ui.DefaultTheme(), []HelpSection{{
		Title: "Keys",
		Entries: []HelpEntry{
			{Key: "n", Description: "new"},
			{Key: "enter", Description: "open"},
		},
	}})
	if !strings.Contains(out, "n[-]      new") {
		t.Errorf("short key not padded: %q", out)
	}
	if !strings.Contains(out, "enter[-]  open") {
		t.Errorf("long key: %q", out)
	}
}
