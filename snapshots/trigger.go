// Copyright (C) 2026 Hearth Labs.
// See LICENSE for copying information.

package snapshots

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTriggerTimeout bounds how long a background capture may run.
const DefaultTriggerTimeout = 30 * time.Second

// Trigger captures fire-and-forget snapshots ahead of destructive schema
// changes. Callers never wait on a capture and never learn whether it
// succeeded; failures are logged and counted only. The schema change must
// not depend on the snapshot existing.
type Trigger struct {
	log     *zap.Logger
	service *Service
	timeout time.Duration

	pending sync.WaitGroup
}

// NewTrigger creates a trigger around the given service.
func NewTrigger(log *zap.Logger, service *Service) *Trigger {
	return &Trigger{
		log:     log,
		service: service,
		timeout: DefaultTriggerTimeout,
	}
}

// SetTimeout overrides how long a single capture may run. Must be called
// before the first PreChange.
func (trigger *Trigger) SetTimeout(timeout time.Duration) {
	trigger.timeout = timeout
}

// PreChange starts capturing a snapshot describing the change about to
// happen and returns immediately.
//
// The capture deliberately ignores the caller's context: the schema change
// proceeding or failing must not cancel the capture.
func (trigger *Trigger) PreChange(reason string) {
	trigger.pending.Add(1)
	go func() {
		defer trigger.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), trigger.timeout)
		defer cancel()

		snapshot, err := trigger.service.Create(ctx, Options{
			Name:        fmt.Sprintf("pre_change_%d", time.Now().UnixNano()),
			Description: reason,
			CreatedBy:   "system",
			Type:        TypePreChange,
		})
		if err != nil {
			mon.Counter("pre_change_snapshot_failures").Inc(1)
			trigger.log.Warn("pre-change snapshot failed",
				zap.String("reason", reason), zap.Error(err))
			return
		}
		trigger.log.Debug("pre-change snapshot stored",
			zap.String("id", snapshot.ID),
			zap.Int64("version", snapshot.Version),
			zap.String("reason", reason))
	}()
}

// Close waits for in-flight captures to finish.
func (trigger *Trigger) Close() error {
	trigger.pending.Wait()
	return nil
}
