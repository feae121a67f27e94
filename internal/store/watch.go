package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
	"github.com/matheus3301/dmsync/internal/model"
)

// watch runs query once, then again after every change event in namespace
// or from another process, and streams the results. Events that arrive
// while a snapshot is pending collapse into one re-query. The initial query
// runs before watch returns so a broken backend fails the subscribe call.
func watch[T any](ctx context.Context, s *Store, namespace string, query func(context.Context) ([]T, error)) (<-chan model.Snapshot[T], error) {
	if s.bus == nil {
		return nil, fmt.Errorf("subscribe %s: store has no bus", namespace)
	}
	local, unsubLocal := s.bus.Subscribe(namespace, 1)
	external, unsubExternal := s.bus.Subscribe(bus.KindExternalChanged, 1)

	items, err := query(ctx)
	if err != nil {
		unsubLocal()
		unsubExternal()
		return nil, fmt.Errorf("subscribe %s: %w", namespace, err)
	}

	out := make(chan model.Snapshot[T], 1)
	out <- model.Snapshot[T]{Items: items}

	go func() {
		defer close(out)
		defer unsubExternal()
		defer unsubLocal()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-local:
				if !ok {
					return
				}
			case _, ok := <-external:
				if !ok {
					return
				}
			}

			items, err := query(ctx)
			if ctx.Err() != nil {
				return
			}
			snap := model.Snapshot[T]{Items: items}
			if err != nil {
				s.log.Warn("live query failed", zap.String("namespace", namespace), zap.Error(err))
				snap = model.Snapshot[T]{Err: err}
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}
