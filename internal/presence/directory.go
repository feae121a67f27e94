package presence

import (
	"context"
	"maps"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
)

// Source reports live presence.
type Source interface {
	Online(ctx context.Context, uids []string) (map[string]bool, error)
	Events(ctx context.Context) (<-chan Event, error)
}

// Directory decorates a directory store so that IsOnline comes from the
// presence source. Presence changes re-emit the last directory snapshot.
//
// Expired keys publish no event, so with a positive refresh interval the
// directory also re-reads presence on every tick and re-emits when it moved.
type Directory struct {
	chat.DirectoryStore
	src     Source
	refresh time.Duration
	log     *zap.Logger
}

// NewDirectory wraps inner. A refresh of zero disables polling.
func NewDirectory(inner chat.DirectoryStore, src Source, refresh time.Duration, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{DirectoryStore: inner, src: src, refresh: refresh, log: log}
}

// SubscribeAll implements chat.DirectoryStore.
func (d *Directory) SubscribeAll(ctx context.Context) (<-chan model.Snapshot[model.DirectoryEntry], error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := d.src.Events(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	snaps, err := d.DirectoryStore.SubscribeAll(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan model.Snapshot[model.DirectoryEntry], 1)
	go func() {
		defer cancel()
		defer close(out)

		var (
			last   []model.DirectoryEntry
			online map[string]bool
			tick   <-chan time.Time
		)
		if d.refresh > 0 {
			ticker := time.NewTicker(d.refresh)
			defer ticker.Stop()
			tick = ticker.C
		}
		emit := func(s model.Snapshot[model.DirectoryEntry]) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				if snap.Err != nil {
					emit(snap)
					return
				}
				last = snap.Items
				online = d.lookup(ctx, last)
				if !emit(model.Snapshot[model.DirectoryEntry]{Items: mergePresence(last, online)}) {
					return
				}
			case evt, ok := <-events:
				if !ok {
					// Presence went away; keep serving the store values.
					events = nil
					online = nil
					if last != nil && !emit(model.Snapshot[model.DirectoryEntry]{Items: mergePresence(last, nil)}) {
						return
					}
					continue
				}
				if last == nil || online == nil || online[evt.UID] == evt.Online {
					continue
				}
				online[evt.UID] = evt.Online
				if !emit(model.Snapshot[model.DirectoryEntry]{Items: mergePresence(last, online)}) {
					return
				}
			case <-tick:
				if last == nil || events == nil {
					continue
				}
				fresh, err := d.src.Online(ctx, entryIDs(last))
				if err != nil {
					d.log.Debug("presence refresh failed", zap.Error(err))
					continue
				}
				if online != nil && maps.Equal(fresh, online) {
					continue
				}
				online = fresh
				if !emit(model.Snapshot[model.DirectoryEntry]{Items: mergePresence(last, online)}) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (d *Directory) lookup(ctx context.Context, entries []model.DirectoryEntry) map[string]bool {
	online, err := d.src.Online(ctx, entryIDs(entries))
	if err != nil {
		d.log.Warn("presence lookup failed, using stored status", zap.Error(err))
		return nil
	}
	return online
}

func entryIDs(entries []model.DirectoryEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// mergePresence returns copies of entries with IsOnline taken from online.
// A nil map leaves the stored values.
func mergePresence(entries []model.DirectoryEntry, online map[string]bool) []model.DirectoryEntry {
	out := make([]model.DirectoryEntry, len(entries))
	copy(out, entries)
	if online == nil {
		return out
	}
	for i := range out {
		out[i].IsOnline = online[out[i].ID]
	}
	return out
}
