package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func openAt(t *testing.T, path string) *DB {
	t.Helper()
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(testDB(t), bus.New(), nil)
}

func createUser(t *testing.T, s *Store, email, name string) model.DirectoryEntry {
	t.Helper()
	u, err := s.Users().Create(context.Background(), NewUser{Email: email, DisplayName: name, PasswordHash: []byte("hash")})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", email, err)
	}
	return u
}

func createPair(t *testing.T, s *Store) (model.DirectoryEntry, model.DirectoryEntry, string) {
	t.Helper()
	alice := createUser(t, s, "alice@example.com", "Alice")
	bob := createUser(t, s, "bob@example.com", "Bob")
	id, err := s.Conversations().Create(context.Background(), model.Conversation{
		Participants: [2]string{alice.ID, bob.ID},
	})
	if err != nil {
		t.Fatal(err)
	}
	return alice, bob, id
}

func recv[T any](t *testing.T, ch <-chan model.Snapshot[T]) model.Snapshot[T] {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot channel closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
	return model.Snapshot[T]{}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}

	status, err := db.SchemaStatus()
	if err != nil {
		t.Fatal(err)
	}
	if status.Version != 1 || status.Dirty {
		t.Errorf("SchemaStatus() = %+v, want version 1 clean", status)
	}
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	c := NewClock(func() time.Time { return fixed })

	prev := c.Now()
	for i := 0; i < 5; i++ {
		next := c.Now()
		if !next.After(prev) {
			t.Fatalf("Now() = %v, not after %v", next, prev)
		}
		prev = next
	}
}

func TestUsersCreateAndLookup(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	alice := createUser(t, s, " Alice@Example.com ", "Alice")
	if alice.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized", alice.Email)
	}

	got, err := s.Users().ByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != alice.ID || got.DisplayName != "Alice" {
		t.Errorf("ByEmail() = %+v, want %+v", got, alice)
	}

	hash, err := s.Users().PasswordHash(ctx, alice.ID)
	if err != nil || string(hash) != "hash" {
		t.Errorf("PasswordHash() = %q, %v", hash, err)
	}

	_, err = s.Users().Create(ctx, NewUser{Email: "alice@example.com"})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate email error = %v, want ErrConflict", err)
	}

	if _, err := s.Users().Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestUsersUpsertAndPresence(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com", "Alice")

	err := s.Users().Upsert(ctx, alice.ID, []model.Update{model.Set(model.FieldDisplayName, "Alice L.")})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Users().SetPresence(ctx, alice.ID, true); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Users().Get(ctx, alice.ID)
	if got.DisplayName != "Alice L." || !got.IsOnline {
		t.Errorf("Get() = %+v, want renamed and online", got)
	}
	if !got.LastSeen.After(alice.LastSeen) {
		t.Errorf("LastSeen = %v, want after %v", got.LastSeen, alice.LastSeen)
	}

	err = s.Users().Upsert(ctx, alice.ID, []model.Update{model.Set("nickname", "al")})
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("unknown field error = %v, want ErrUnknownField", err)
	}

	if err := s.Users().Upsert(ctx, "oauth-1", []model.Update{model.Set(model.FieldEmail, "o@example.com")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Users().ByEmail(ctx, "o@example.com"); err != nil {
		t.Errorf("upserted user not found: %v", err)
	}
}

func TestConversationCreateIsIdempotentPerPair(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice, bob, id := createPair(t, s)

	again, err := s.Conversations().Create(ctx, model.Conversation{Participants: [2]string{bob.ID, alice.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if again != id {
		t.Errorf("Create() reversed pair = %q, want existing %q", again, id)
	}

	list, err := s.Conversations().ListByParticipant(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d conversations, want 1", len(list))
	}

	if _, err := s.Conversations().Create(ctx, model.Conversation{Participants: [2]string{alice.ID, alice.ID}}); err == nil {
		t.Error("Create() with self pair should fail")
	}
}

func TestConversationUpdateFields(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice, bob, id := createPair(t, s)
	cs := s.Conversations()

	err := cs.UpdateFields(ctx, id, []model.Update{
		model.SetKey(model.FieldArchivedBy, alice.ID, true),
		model.SetKey(model.FieldUnreadCount, bob.ID, model.Increment(1)),
		model.SetKey(model.FieldUnreadCount, bob.ID, model.Increment(1)),
		model.SetKey(model.FieldReadBy, alice.ID, model.ServerTimestamp),
		model.Set(model.FieldLastMessage, "hi"),
		model.Set(model.FieldLastMessageTime, model.ServerTimestamp),
		model.SetKey(model.FieldParticipantDetails, bob.ID, model.ParticipantDetail{Name: "Bob"}),
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := cs.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !c.ArchivedBy[alice.ID] || c.ArchivedBy[bob.ID] {
		t.Errorf("ArchivedBy = %v, want only alice", c.ArchivedBy)
	}
	if c.UnreadCount[bob.ID] != 2 {
		t.Errorf("UnreadCount[bob] = %d, want 2", c.UnreadCount[bob.ID])
	}
	if c.ReadBy[alice.ID].IsZero() || c.LastMessageTime.IsZero() {
		t.Error("server timestamps were not assigned")
	}
	if c.LastMessage != "hi" || c.DisplayName(bob.ID) != "Bob" {
		t.Errorf("got %+v", c)
	}

	err = cs.UpdateFields(ctx, id, []model.Update{
		model.SetKey(model.FieldArchivedBy, alice.ID, false),
		model.Set("title", "x"),
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("error = %v, want ErrUnknownField", err)
	}
	c, _ = cs.Get(ctx, id)
	if !c.ArchivedBy[alice.ID] {
		t.Error("rejected update batch was partially applied")
	}

	err = cs.UpdateFields(ctx, "missing", []model.Update{model.Set(model.FieldLastMessage, "x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}

	err = cs.UpdateFields(ctx, id, []model.Update{model.SetKey(model.FieldArchivedBy, alice.ID, "yes")})
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("error = %v, want ErrInvalidValue", err)
	}
}

func TestListByParticipantOrdersByActivity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice@example.com", "Alice")
	bob := createUser(t, s, "bob@example.com", "Bob")
	carol := createUser(t, s, "carol@example.com", "Carol")
	cs := s.Conversations()

	withBob, _ := cs.Create(ctx, model.Conversation{Participants: [2]string{alice.ID, bob.ID}})
	withCarol, _ := cs.Create(ctx, model.Conversation{Participants: [2]string{alice.ID, carol.ID}})
	if err := cs.UpdateFields(ctx, withBob, []model.Update{model.Set(model.FieldLastMessageTime, model.ServerTimestamp)}); err != nil {
		t.Fatal(err)
	}

	list, err := cs.ListByParticipant(ctx, alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != withBob || list[1].ID != withCarol {
		t.Errorf("order = %v, want [%s %s]", ids(list), withBob, withCarol)
	}

	list, _ = cs.ListByParticipant(ctx, carol.ID)
	if len(list) != 1 || list[0].ID != withCarol {
		t.Errorf("carol sees %v, want [%s]", ids(list), withCarol)
	}
}

func ids(convs []model.Conversation) []string {
	out := make([]string, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestMessagesAppendListUpdateDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice, bob, cid := createPair(t, s)
	ms := s.Messages()

	first, err := ms.Append(ctx, cid, model.Message{Text: "hi", SenderID: alice.ID, SenderName: "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	base, _ := ms.Get(ctx, cid, first)
	second, err := ms.Append(ctx, cid, model.Message{Text: "yo", SenderID: bob.ID, ReplyTo: base.Ref()})
	if err != nil {
		t.Fatal(err)
	}

	list, err := ms.List(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != first || list[1].ID != second {
		t.Fatalf("List() = %+v", list)
	}
	if !list[1].Timestamp.After(list[0].Timestamp) {
		t.Error("timestamps are not increasing")
	}
	if list[0].Status != model.StatusSent {
		t.Errorf("Status = %q, want sent", list[0].Status)
	}
	if list[1].ReplyTo == nil || list[1].ReplyTo.ID != first || list[1].ReplyTo.Text != "hi" {
		t.Errorf("ReplyTo = %+v", list[1].ReplyTo)
	}

	err = ms.UpdateFields(ctx, cid, first, []model.Update{
		model.Set(model.FieldIsDeleted, true),
		model.Set(model.FieldDeletedAt, model.ServerTimestamp),
		model.Set(model.FieldDeletedBy, alice.ID),
		model.Set(model.FieldOriginalText, "hi"),
		model.Set(model.FieldText, model.TombstoneText),
	})
	if err != nil {
		t.Fatal(err)
	}
	got, _ := ms.Get(ctx, cid, first)
	if !got.IsDeleted || got.Text != model.TombstoneText || got.OriginalText != "hi" || got.DeletedAt.IsZero() {
		t.Errorf("soft delete = %+v", got)
	}

	if err := ms.Delete(ctx, cid, second); err != nil {
		t.Fatal(err)
	}
	if err := ms.Delete(ctx, cid, second); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	if _, err := ms.Append(ctx, "missing", model.Message{Text: "x", SenderID: alice.ID}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Append() to missing conversation error = %v, want ErrNotFound", err)
	}
}

func TestDeleteConversationCascades(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	alice, _, cid := createPair(t, s)

	if _, err := s.Messages().Append(ctx, cid, model.Message{Text: "hi", SenderID: alice.ID}); err != nil {
		t.Fatal(err)
	}
	if err := s.Conversations().Delete(ctx, cid); err != nil {
		t.Fatal(err)
	}

	msgs, err := s.Messages().List(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages after conversation delete, want 0", len(msgs))
	}
	if err := s.Conversations().Delete(ctx, cid); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestSubscribeEmitsOnChange(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob, cid := createPair(t, s)

	msgs, err := s.Messages().Subscribe(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	convs, err := s.Conversations().SubscribeByParticipant(ctx, bob.ID)
	if err != nil {
		t.Fatal(err)
	}

	if snap := recv(t, msgs); len(snap.Items) != 0 {
		t.Fatalf("initial messages = %d, want 0", len(snap.Items))
	}
	if snap := recv(t, convs); len(snap.Items) != 1 {
		t.Fatalf("initial conversations = %d, want 1", len(snap.Items))
	}

	if _, err := s.Messages().Append(ctx, cid, model.Message{Text: "hi", SenderID: alice.ID}); err != nil {
		t.Fatal(err)
	}
	if snap := recv(t, msgs); len(snap.Items) != 1 || snap.Items[0].Text != "hi" {
		t.Errorf("messages after append = %+v", snap.Items)
	}

	if err := s.Conversations().UpdateFields(ctx, cid, []model.Update{model.SetKey(model.FieldArchivedBy, bob.ID, true)}); err != nil {
		t.Fatal(err)
	}
	if snap := recv(t, convs); len(snap.Items) != 1 || !snap.Items[0].ArchivedBy[bob.ID] {
		t.Errorf("conversations after archive = %+v", snap.Items)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription did not close after cancel")
		}
	}
}

func TestDirectorySubscription(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir, err := s.Users().SubscribeAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap := recv(t, dir); len(snap.Items) != 0 {
		t.Fatalf("initial directory = %d entries, want 0", len(snap.Items))
	}
	createUser(t, s, "alice@example.com", "Alice")
	if snap := recv(t, dir); len(snap.Items) != 1 {
		t.Errorf("directory after create = %d entries, want 1", len(snap.Items))
	}
}

func TestWatchExternalSeesOtherConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	b := bus.New()
	s := New(openAt(t, path), b, nil)
	other := New(openAt(t, path), bus.New(), nil)

	events, unsub := b.Subscribe(bus.KindExternalChanged, 1)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.WatchExternal(ctx, 10*time.Millisecond) }()

	// Give the watcher time to read its baseline version.
	time.Sleep(50 * time.Millisecond)
	createUser(t, other, "remote@example.com", "Remote")

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatal("no external change event")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("WatchExternal() error = %v", err)
	}
}

func TestConcurrentSendsFromTwoHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	a := New(openAt(t, path), bus.New(), nil)
	b := New(openAt(t, path), bus.New(), nil)
	alice, bob, cid := createPair(t, a)
	ctx := context.Background()

	const workers, rounds = 4, 100
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := range workers {
		s, sender, recipient := a, alice, bob
		if w%2 == 1 {
			s, sender, recipient = b, bob, alice
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rounds {
				text := fmt.Sprintf("%d-%d", w, i)
				if _, err := s.Messages().Append(ctx, cid, model.Message{Text: text, SenderID: sender.ID}); err != nil {
					errs <- err
					continue
				}
				err := s.Conversations().UpdateFields(ctx, cid, []model.Update{
					model.Set(model.FieldLastMessage, text),
					model.Set(model.FieldLastMessageTime, model.ServerTimestamp),
					model.SetKey(model.FieldUnreadCount, recipient.ID, model.Increment(1)),
				})
				if err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		failed++
		t.Log(err)
	}
	if failed > 0 {
		t.Fatalf("%d of %d writes failed", failed, 2*workers*rounds)
	}

	c, err := a.Conversations().Get(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	want := workers / 2 * rounds
	if c.UnreadCount[alice.ID] != want || c.UnreadCount[bob.ID] != want {
		t.Errorf("UnreadCount = %v, want %d each", c.UnreadCount, want)
	}
	list, err := b.Messages().List(ctx, cid)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != workers*rounds {
		t.Errorf("List() = %d messages, want %d", len(list), workers*rounds)
	}
}

func TestStateLastConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	st := s.State()

	if got, err := st.LastConversation(ctx, "u1"); err != nil || got != "" {
		t.Fatalf("LastConversation() = %q, %v; want empty", got, err)
	}
	if err := st.SetLastConversation(ctx, "u1", "c1"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetLastConversation(ctx, "u1", "c2"); err != nil {
		t.Fatal(err)
	}
	if got, _ := st.LastConversation(ctx, "u1"); got != "c2" {
		t.Errorf("LastConversation() = %q, want c2", got)
	}
	if got, _ := st.LastConversation(ctx, "u2"); got != "" {
		t.Errorf("other user sees %q, want empty", got)
	}
	if err := st.SetLastConversation(ctx, "u1", ""); err != nil {
		t.Fatal(err)
	}
	if got, _ := st.LastConversation(ctx, "u1"); got != "" {
		t.Errorf("LastConversation() after clear = %q, want empty", got)
	}
}
