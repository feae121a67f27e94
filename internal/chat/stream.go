package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/status"
)

var (
	// ErrSubscribeTimeout is recorded when a stream yields no first snapshot in time.
	ErrSubscribeTimeout = errors.New("no snapshot before subscribe timeout")
	errStreamEnded      = errors.New("stream ended")
)

// streamDef describes one supervised subscription.
type streamDef[T any] struct {
	machine *status.Machine
	open    func(ctx context.Context) (<-chan model.Snapshot[T], error)
	// apply receives every snapshot. It returns false when the snapshot
	// is stale and was discarded.
	apply func(items []T) bool
	// health is called after every state change.
	health func()
}

// supervise keeps a subscription open until ctx is done. Each attempt must
// deliver its first snapshot within SubscribeTimeout; a failed or ended
// stream is reopened after an exponential backoff that resets once a
// stream goes live.
func supervise[T any](ctx context.Context, cfg Config, log *zap.Logger, spec streamDef[T]) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.BackoffInitial
	bo.MaxInterval = cfg.BackoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()

	stream := spec.machine.Stream()
	for {
		transition(spec.machine, status.Connecting, log)
		spec.health()

		err := runAttempt(ctx, cfg, spec, bo)
		if ctx.Err() != nil {
			transition(spec.machine, status.Closed, log)
			spec.health()
			return
		}
		if err := spec.machine.Fail(err); err != nil {
			log.Debug("status transition rejected", zap.Error(err))
		}
		spec.health()

		wait := bo.NextBackOff()
		log.Warn("stream degraded, resubscribing",
			zap.String("stream", stream),
			zap.Duration("backoff", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			transition(spec.machine, status.Closed, log)
			spec.health()
			return
		case <-timer.C:
		}
	}
}

func runAttempt[T any](ctx context.Context, cfg Config, spec streamDef[T], bo backoff.BackOff) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := spec.open(actx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	first := time.NewTimer(cfg.SubscribeTimeout)
	defer first.Stop()
	firstSeen := false

	for {
		var timeout <-chan time.Time
		if !firstSeen {
			timeout = first.C
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrSubscribeTimeout
		case snap, ok := <-ch:
			if !ok {
				return errStreamEnded
			}
			if snap.Err != nil {
				return snap.Err
			}
			if !spec.apply(snap.Items) {
				continue
			}
			if !firstSeen {
				firstSeen = true
				bo.Reset()
				_ = spec.machine.Transition(status.Live)
				spec.health()
			}
		}
	}
}

func transition(m *status.Machine, to status.State, log *zap.Logger) {
	if err := m.Transition(to); err != nil {
		log.Debug("status transition rejected", zap.Error(err))
	}
}
