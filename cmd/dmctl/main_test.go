package main

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
)

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, path := range [][]string{
		{"signup"}, {"login"}, {"logout"}, {"whoami"}, {"profile"},
		{"users"}, {"conversations"}, {"ls"}, {"start"}, {"messages"}, {"send"},
		{"delete-message"}, {"archive"}, {"unarchive"}, {"mute"}, {"unmute"},
		{"read"}, {"delete"}, {"db", "status"},
	} {
		cmd, _, err := root.Find(path)
		if err != nil || cmd == root {
			t.Errorf("command %v not found: %v", path, err)
		}
	}
}

func TestArgsValidation(t *testing.T) {
	root := newRootCmd()
	send, _, err := root.Find([]string{"send"})
	if err != nil {
		t.Fatal(err)
	}
	if err := send.Args(send, []string{"c1"}); err == nil {
		t.Error("send accepted a missing text")
	}
	archive, _, _ := root.Find([]string{"archive"})
	if err := archive.Args(archive, nil); err == nil {
		t.Error("archive accepted no conversation id")
	}
}

func TestResolveUser(t *testing.T) {
	entries := []model.DirectoryEntry{
		{ID: "u1", Email: "ada@example.com"},
		{ID: "u2", Email: "bob@example.com"},
	}
	if e, err := resolveUser(entries, "u2"); err != nil || e.ID != "u2" {
		t.Errorf("by id: %+v, %v", e, err)
	}
	if e, err := resolveUser(entries, "ADA@example.com"); err != nil || e.ID != "u1" {
		t.Errorf("by email: %+v, %v", e, err)
	}
	if _, err := resolveUser(entries, "carol@example.com"); err == nil {
		t.Error("expected an error for an unknown user")
	}
}

func TestSettled(t *testing.T) {
	if ok, err := settled(false, "x", chat.StreamHealth{State: status.Live}); ok || err != nil {
		t.Errorf("unmet condition: %v, %v", ok, err)
	}
	if ok, err := settled(true, "x", chat.StreamHealth{State: status.Connecting}); ok || err != nil {
		t.Errorf("connecting: %v, %v", ok, err)
	}
	if ok, err := settled(true, "x", chat.StreamHealth{State: status.Live}); !ok || err != nil {
		t.Errorf("live: %v, %v", ok, err)
	}
	_, err := settled(true, "messages", chat.StreamHealth{State: status.Degraded, Err: "timeout"})
	if err == nil || !strings.Contains(err.Error(), "messages unavailable: timeout") {
		t.Errorf("degraded: %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	ts := time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)
	own := model.Message{ID: "m1", SenderID: "me", Text: "hello\nworld", Timestamp: ts, Status: model.StatusSent}
	if got := formatMessage("me", own); got != "2024-03-10 09:30  m1  You: hello world [sent]" {
		t.Errorf("own message = %q", got)
	}

	reply := model.Message{
		ID: "m2", SenderID: "ada", SenderName: "Ada", Text: "yes", Timestamp: ts,
		ReplyTo: &model.ReplyRef{ID: "m1", Text: "hello"},
	}
	if got := formatMessage("me", reply); !strings.HasSuffix(got, "Ada: (re: hello) yes") {
		t.Errorf("reply = %q", got)
	}

	deleted := model.Message{ID: "m3", SenderID: "me", Text: "secret", Timestamp: ts, IsDeleted: true, Status: model.StatusSent}
	got := formatMessage("me", deleted)
	if strings.Contains(got, "secret") || !strings.HasSuffix(got, model.TombstoneText) {
		t.Errorf("deleted = %q", got)
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a  b\n c", 0); got != "a b c" {
		t.Errorf("oneLine = %q", got)
	}
	if got := oneLine("abcdef", 4); got != "abc…" {
		t.Errorf("oneLine truncated = %q", got)
	}
}
