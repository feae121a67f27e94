package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
)

// Stream names, as reported in stream.status_changed events.
const (
	StreamDirectory     = "directory"
	StreamConversations = "conversations"
	StreamMessages      = "messages"
)

// Config bounds the core's waits on the backend.
type Config struct {
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 15 * time.Second,
		BackoffInitial:   500 * time.Millisecond,
		BackoffMax:       30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = d.SubscribeTimeout
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = d.BackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	return c
}

// Options wires a Core to its collaborators. State, Logger, Now and
// IsNotFound are optional.
type Options struct {
	Directory     DirectoryStore
	Conversations ConversationStore
	Messages      MessageStore
	Identity      IdentitySource
	State         StateStore
	Bus           *bus.Bus
	Logger        *zap.Logger
	Now           func() time.Time
	// IsNotFound reports adapter errors that mean the target is gone.
	IsNotFound func(error) bool
	Config     Config
}

// Core is the synchronization core of one client session. It mirrors the
// live store streams of the signed-in user into a ViewModel, overlays
// optimistic edits and runs the commands that mutate the stores.
//
// All ViewModel state is guarded by mu. Snapshot handlers and commands hold
// it only while reducing, never across a store call.
type Core struct {
	dir   DirectoryStore
	convs ConversationStore
	msgs  MessageStore
	ident IdentitySource
	state StateStore
	bus   *bus.Bus
	log   *zap.Logger
	now   func() time.Time
	gone  func(error) bool
	cfg   Config

	wg sync.WaitGroup

	mu            sync.Mutex
	self          *model.Identity
	sessionGen    uint64
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	restore       string

	dirStatus     *status.Machine
	convStatus    *status.Machine
	directory     []model.DirectoryEntry
	conversations []model.Conversation
	created       map[string]model.Conversation

	active    string
	msgStatus *status.Machine
	msgGen    uint64
	msgCancel context.CancelFunc
	msgFor    string
	messages  []model.Message
	overlay   overlay
	view      ViewModel
}

// New creates a Core. Call Run to start following the identity.
func New(opts Options) *Core {
	b := opts.Bus
	if b == nil {
		b = bus.New()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Core{
		dir:        opts.Directory,
		convs:      opts.Conversations,
		msgs:       opts.Messages,
		ident:      opts.Identity,
		state:      opts.State,
		bus:        b,
		log:        log,
		now:        now,
		gone:       opts.IsNotFound,
		cfg:        opts.Config.withDefaults(),
		dirStatus:  status.NewMachine(StreamDirectory, b),
		convStatus: status.NewMachine(StreamConversations, b),
		msgStatus:  status.NewMachine(StreamMessages, b),
		created:    make(map[string]model.Conversation),
	}
	c.recomputeLocked()
	return c
}

// Bus returns the bus the core publishes view.changed on.
func (c *Core) Bus() *bus.Bus {
	return c.bus
}

// View returns a copy of the current ViewModel.
func (c *Core) View() ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Clone()
}

// Self returns the signed-in identity, or nil.
func (c *Core) Self() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.self == nil {
		return nil
	}
	self := *c.self
	return &self
}

// Run follows the identity stream until ctx is done or the stream closes.
// A new identity opens the directory and conversation subscriptions scoped
// to it; nil closes them and resets the ViewModel.
func (c *Core) Run(ctx context.Context) error {
	ids := c.ident.Watch(ctx)
	defer c.wg.Wait()
	defer c.endSession()

	for {
		select {
		case <-ctx.Done():
			return nil
		case id, ok := <-ids:
			if !ok {
				return nil
			}
			c.setIdentity(ctx, id)
		}
	}
}

func (c *Core) setIdentity(ctx context.Context, id *model.Identity) {
	c.mu.Lock()
	if id != nil && c.self != nil && id.ID == c.self.ID {
		self := *id
		c.self = &self
		c.recomputeLocked()
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.endSession()
	if id == nil {
		c.log.Info("signed out, subscriptions closed")
		return
	}

	restore := c.loadLastConversation(ctx, id.ID)

	c.mu.Lock()
	self := *id
	c.self = &self
	c.sessionGen++
	gen := c.sessionGen
	sctx, cancel := context.WithCancel(ctx)
	c.sessionCtx = sctx
	c.sessionCancel = cancel
	c.restore = restore
	// Fresh machines, so a closing supervisor of the previous session
	// cannot overwrite the state of the new one.
	dirStatus := status.NewMachine(StreamDirectory, c.bus)
	convStatus := status.NewMachine(StreamConversations, c.bus)
	c.dirStatus, c.convStatus = dirStatus, convStatus
	c.recomputeLocked()
	c.mu.Unlock()

	c.log.Info("session started", zap.String("uid", id.ID))

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		supervise(sctx, c.cfg, c.log, streamDef[model.DirectoryEntry]{
			machine: dirStatus,
			open:    c.dir.SubscribeAll,
			apply:   func(items []model.DirectoryEntry) bool { return c.applyDirectory(gen, items) },
			health:  c.refresh,
		})
	}()
	go func() {
		defer c.wg.Done()
		supervise(sctx, c.cfg, c.log, streamDef[model.Conversation]{
			machine: convStatus,
			open: func(ctx context.Context) (<-chan model.Snapshot[model.Conversation], error) {
				return c.convs.SubscribeByParticipant(ctx, self.ID)
			},
			apply:  func(items []model.Conversation) bool { return c.applyConversations(gen, items) },
			health: c.refresh,
		})
	}()
}

func (c *Core) loadLastConversation(ctx context.Context, uid string) string {
	if c.state == nil {
		return ""
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	id, err := c.state.LastConversation(sctx, uid)
	if err != nil {
		c.log.Warn("load last conversation", zap.Error(err))
		return ""
	}
	return id
}

func (c *Core) saveLastConversation(ctx context.Context, uid, id string) {
	if c.state == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.WriteTimeout)
	defer cancel()
	if err := c.state.SetLastConversation(sctx, uid, id); err != nil {
		c.log.Warn("save last conversation", zap.String("conversation_id", id), zap.Error(err))
	}
}

// endSession cancels every subscription and clears the ViewModel.
func (c *Core) endSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionCancel != nil {
		c.sessionCancel()
		c.sessionCancel = nil
	}
	c.sessionCtx = nil
	c.closeMessagesLocked()
	c.sessionGen++
	c.self = nil
	c.restore = ""
	c.active = ""
	c.directory = nil
	c.conversations = nil
	c.created = make(map[string]model.Conversation)
	c.overlay.reset()
	c.recomputeLocked()
}

func (c *Core) applyDirectory(gen uint64, items []model.DirectoryEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.sessionGen || c.self == nil {
		return false
	}
	c.directory = WithoutSelf(c.self.ID, items)
	c.recomputeLocked()
	return true
}

func (c *Core) applyConversations(gen uint64, items []model.Conversation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.sessionGen || c.self == nil {
		return false
	}

	// A selected conversation that vanished between two snapshots was deleted.
	if c.active != "" && containsConversation(c.conversations, c.active) && !containsConversation(items, c.active) {
		c.log.Info("active conversation removed", zap.String("conversation_id", c.active))
		c.active = ""
		c.closeMessagesLocked()
	}

	c.conversations = items
	for id := range c.created {
		if containsConversation(items, id) {
			delete(c.created, id)
		}
	}
	c.overlay.settle(targetConversation)

	if c.restore != "" {
		if c.active == "" && containsConversation(items, c.restore) {
			c.selectLocked(c.restore)
		}
		c.restore = ""
	}
	c.recomputeLocked()
	return true
}

func (c *Core) applyMessages(gen uint64, items []model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.msgGen {
		return false
	}
	msgs := append([]model.Message(nil), items...)
	SortMessages(msgs)
	c.messages = msgs
	c.overlay.settle(targetMessage)
	c.recomputeLocked()
	return true
}

// selectLocked makes id the active conversation, cancelling the previous
// message subscription before the next one opens. No subscription starts
// once the session context is gone, since Run may already be waiting on wg.
func (c *Core) selectLocked(id string) {
	if id == c.active && c.msgFor == id {
		return
	}
	c.closeMessagesLocked()
	c.active = id
	if id == "" {
		return
	}
	parent := c.sessionCtx
	if parent == nil || parent.Err() != nil {
		return
	}

	c.msgGen++
	gen := c.msgGen
	c.msgFor = id
	c.messages = nil
	machine := status.NewMachine(StreamMessages, c.bus)
	c.msgStatus = machine

	ctx, cancel := context.WithCancel(parent)
	c.msgCancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		supervise(ctx, c.cfg, c.log.With(zap.String("conversation_id", id)), streamDef[model.Message]{
			machine: machine,
			open: func(ctx context.Context) (<-chan model.Snapshot[model.Message], error) {
				return c.msgs.Subscribe(ctx, id)
			},
			apply:  func(items []model.Message) bool { return c.applyMessages(gen, items) },
			health: c.refresh,
		})
	}()
}

func (c *Core) closeMessagesLocked() {
	if c.msgCancel != nil {
		c.msgCancel()
		c.msgCancel = nil
	}
	c.msgGen++
	c.msgFor = ""
	c.messages = nil
	c.msgStatus = status.NewMachine(StreamMessages, c.bus)
}

func (c *Core) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recomputeLocked()
}

// recomputeLocked rebuilds the ViewModel from the latest snapshots and the
// overlay, then announces the change.
func (c *Core) recomputeLocked() {
	v := ViewModel{
		ActiveConversationID:  c.active,
		Conversations:         []model.Conversation{},
		ArchivedConversations: []model.Conversation{},
		Messages:              []model.Message{},
		Directory:             []model.DirectoryEntry{},
		UnreadCounts:          map[string]int{},
		DirectoryStatus:       health(c.dirStatus),
		ConversationsStatus:   health(c.convStatus),
		MessagesStatus:        health(c.msgStatus),
	}
	if c.self != nil {
		self := *c.self
		v.Self = &self
		v.Conversations, v.ArchivedConversations = Partition(self.ID, c.overlay.conversations(c.conversations))
		v.UnreadCounts = UnreadCounts(self.ID, v.Conversations, v.ArchivedConversations)
		v.Directory = append(v.Directory, c.directory...)
		if c.active != "" && c.msgFor == c.active {
			v.Messages = c.overlay.messages(c.active, c.messages)
		}
	}
	c.view = v
	c.bus.Publish(bus.Event{Kind: bus.KindViewChanged})
}

func health(m *status.Machine) StreamHealth {
	h := StreamHealth{State: m.Current()}
	if err := m.Err(); err != nil && h.State == status.Degraded {
		h.Err = err.Error()
	}
	return h
}

func containsConversation(convs []model.Conversation, id string) bool {
	for _, c := range convs {
		if c.ID == id {
			return true
		}
	}
	return false
}
