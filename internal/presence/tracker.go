// Package presence tracks which users are online in redis and merges that
// into directory snapshots.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix = "presence:"
	// EventsChannel carries an Event every time a user goes online or offline.
	EventsChannel = "presence:events"
)

// Event is published on EventsChannel.
type Event struct {
	UID    string `json:"uid"`
	Online bool   `json:"online"`
	At     int64  `json:"at"`
}

// NewClient connects to redis and checks the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

// Tracker keeps one expiring key per online user. A user whose client stops
// sending heartbeats drops offline when the key expires.
type Tracker struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
	now func() time.Time
}

// NewTracker creates a tracker whose keys live for ttl between heartbeats.
func NewTracker(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Tracker{rdb: rdb, ttl: ttl, log: log, now: time.Now}
}

func key(uid string) string { return keyPrefix + uid }

// SetOnline marks uid online and announces it.
func (t *Tracker) SetOnline(ctx context.Context, uid string) error {
	now := t.now()
	if err := t.rdb.Set(ctx, key(uid), now.UnixMilli(), t.ttl).Err(); err != nil {
		return fmt.Errorf("set online %s: %w", uid, err)
	}
	return t.publish(ctx, Event{UID: uid, Online: true, At: now.UnixMilli()})
}

// SetOffline removes uid and announces it.
func (t *Tracker) SetOffline(ctx context.Context, uid string) error {
	if err := t.rdb.Del(ctx, key(uid)).Err(); err != nil {
		return fmt.Errorf("set offline %s: %w", uid, err)
	}
	return t.publish(ctx, Event{UID: uid, Online: false, At: t.now().UnixMilli()})
}

// Heartbeat extends the key of uid, recreating it if it already expired.
func (t *Tracker) Heartbeat(ctx context.Context, uid string) error {
	ok, err := t.rdb.Expire(ctx, key(uid), t.ttl).Result()
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", uid, err)
	}
	if !ok {
		return t.SetOnline(ctx, uid)
	}
	return nil
}

// Interval is the time between heartbeats.
func (t *Tracker) Interval() time.Duration {
	return t.ttl / 3
}

// KeepAlive sends heartbeats for uid until ctx is done.
func (t *Tracker) KeepAlive(ctx context.Context, uid string) {
	ticker := time.NewTicker(t.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Heartbeat(ctx, uid); err != nil && ctx.Err() == nil {
				t.log.Warn("presence heartbeat failed", zap.String("uid", uid), zap.Error(err))
			}
		}
	}
}

// Online reports which of uids currently have a live key.
func (t *Tracker) Online(ctx context.Context, uids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(uids))
	if len(uids) == 0 {
		return out, nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = key(uid)
	}
	vals, err := t.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	for i, v := range vals {
		out[uids[i]] = v != nil
	}
	return out, nil
}

// Events subscribes to presence changes. The channel closes when ctx is done.
func (t *Tracker) Events(ctx context.Context) (<-chan Event, error) {
	sub := t.rdb.Subscribe(ctx, EventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", EventsChannel, err)
	}

	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				evt, err := decodeEvent(msg.Payload)
				if err != nil {
					t.log.Debug("ignoring presence event", zap.Error(err))
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Tracker) publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := t.rdb.Publish(ctx, EventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish presence: %w", err)
	}
	return nil
}

func decodeEvent(payload string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return Event{}, fmt.Errorf("decode presence event: %w", err)
	}
	if evt.UID == "" {
		return Event{}, errors.New("presence event without uid")
	}
	return evt, nil
}
