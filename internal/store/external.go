package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/bus"
)

// WatchExternal polls PRAGMA data_version on a dedicated connection and
// publishes store.external.changed whenever another connection has committed
// to the file since the last poll. It blocks until ctx is done.
func (s *Store) WatchExternal(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("external watcher conn: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var last int64
	if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&last); err != nil {
		return fmt.Errorf("read data_version: %w", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var v int64
		if err := conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("external watcher poll failed", zap.Error(err))
			continue
		}
		if v != last {
			last = v
			s.notify(bus.KindExternalChanged)
		}
	}
}
