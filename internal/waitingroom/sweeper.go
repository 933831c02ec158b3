package waitingroom

import (
	"context"
	"log"
	"time"
)

// Sweeper periodically evicts stale waiting-room entries for every
// active event.  Absence of heartbeat is the only abandonment signal;
// there is no explicit leave call.
type Sweeper struct {
	room     *Room
	interval time.Duration
}

// NewSweeper returns a sweeper running at the given fixed interval.
func NewSweeper(room *Room, interval time.Duration) *Sweeper {
	return &Sweeper{room: room, interval: interval}
}

// Run blocks, sweeping every interval until the context is cancelled.
// Intended to be launched on its own goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	events, err := s.room.store.ActiveEvents(ctx)
	if err != nil {
		log.Printf("sweeper: list active events: %v", err)
		return
	}
	for _, eventID := range events {
		removed, err := s.room.CleanupExpiredUsers(ctx, eventID)
		if err != nil {
			log.Printf("sweeper: event=%d cleanup: %v", eventID, err)
			continue
		}
		if removed > 0 {
			log.Printf("sweeper: event=%d evicted %d stale entries", eventID, removed)
		}
		if err := s.room.store.DeregisterEvent(ctx, eventID); err != nil {
			log.Printf("sweeper: event=%d deregister: %v", eventID, err)
		}
	}
}
