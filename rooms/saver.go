package rooms

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultSaveInterval is how often the saver scans the registry when no
// interval is configured.
const DefaultSaveInterval = 2 * time.Second

// Saver periodically flushes dirty rooms' snapshots to durable storage and
// reaps Closed rooms from the registry. Each room's flush is an independent
// unit of work, so one slow or failing room never blocks the others.
type Saver struct {
	registry *Registry
	interval time.Duration
	log      *logrus.Entry
}

func NewSaver(registry *Registry, interval time.Duration) *Saver {
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	return &Saver{
		registry: registry,
		interval: interval,
		log:      logrus.WithField("component", "saver"),
	}
}

// Run scans the registry on a fixed period until the context is canceled.
func (s *Saver) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithField("interval", s.interval).Info("saver started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("saver stopped")
			return
		case <-ticker.C:
			s.Flush(ctx)
		}
	}
}

// Flush performs one scan: reap Closed rooms, then flush every dirty room
// concurrently. A write failure is logged and leaves the dirty flag set, so
// the next pass retries; a pending change is never silently dropped.
// Exported so tests and shutdown can drive the schedule deterministically.
func (s *Saver) Flush(ctx context.Context) {
	var wg sync.WaitGroup
	for _, room := range s.registry.Rooms() {
		if room.State() == StateClosed {
			s.registry.Remove(room.ID)
			continue
		}
		if !room.Dirty() {
			continue
		}
		wg.Add(1)
		go func(r *Room) {
			defer wg.Done()
			if err := r.Flush(ctx); err != nil {
				s.log.WithField("room_id", r.ID).WithError(err).Error("snapshot flush failed, will retry")
			}
		}(room)
	}
	wg.Wait()
}
