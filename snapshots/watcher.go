// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hearthdb/hearth/internal/sync2"
)

// DefaultWatchInterval is how often the watcher looks for schema drift.
const DefaultWatchInterval = 6 * time.Hour

// Watcher periodically captures an automatic snapshot whenever the schema
// drifted since the most recent one.
//
// architecture: Chore
type Watcher struct {
	log     *zap.Logger
	service *Service

	Loop *sync2.Cycle
}

// NewWatcher creates a watcher checking for drift at the given interval.
// Intervals of zero or less fall back to DefaultWatchInterval.
func NewWatcher(log *zap.Logger, service *Service, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	return &Watcher{
		log:     log,
		service: service,
		Loop:    sync2.NewCycle(interval),
	}
}

// Run starts the watcher loop and blocks until the context is canceled or
// Close is called. Check failures keep the loop alive.
func (watcher *Watcher) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	return watcher.Loop.Run(ctx, watcher.check)
}

func (watcher *Watcher) check(ctx context.Context) error {
	changed, err := watcher.service.Changed(ctx)
	if err != nil {
		watcher.log.Warn("schema drift check failed", zap.Error(err))
		return nil
	}
	if !changed {
		return nil
	}

	snapshot, err := watcher.service.Create(ctx, Options{
		Name:        fmt.Sprintf("auto_%d", time.Now().Unix()),
		Description: "schema drift detected",
		CreatedBy:   "watcher",
		Type:        TypeAuto,
	})
	if err != nil {
		mon.Counter("watcher_snapshot_failures").Inc(1)
		watcher.log.Error("automatic snapshot failed", zap.Error(err))
		return nil
	}

	watcher.log.Info("automatic snapshot created",
		zap.String("id", snapshot.ID),
		zap.Int64("version", snapshot.Version))
	return nil
}

// Close stops the watcher loop.
func (watcher *Watcher) Close() error {
	watcher.Loop.Stop()
	return nil
}
