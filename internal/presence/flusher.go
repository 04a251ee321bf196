package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/happier-dev/happier-sub002/internal/models"
)

// Flusher is the single-process flush path: drain the batcher on a timer and
// write the batch out. Entries that fail to write are re-recorded so the next
// cycle retries them.
type Flusher struct {
	batcher  *Batcher
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

func NewFlusher(batcher *Batcher, store Store, interval time.Duration) *Flusher {
	return &Flusher{
		batcher:  batcher,
		store:    store,
		interval: interval,
		logger:   slog.Default().With("component", "presence-flusher"),
	}
}

// Run blocks until ctx is canceled, then performs one final flush.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			f.flushOnce(ctx)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			f.flushOnce(flushCtx)
			return nil
		}
	}
}

func (f *Flusher) flushOnce(ctx context.Context) {
	batch := f.batcher.Drain()
	if len(batch) == 0 {
		return
	}
	succeeded := flushAll(ctx, f.store, batch, f.logger)
	for k, p := range batch {
		if _, ok := succeeded[k]; ok {
			continue
		}
		// Re-record preserves max-wins against pings that arrived mid-flush.
		switch k.Kind {
		case models.PresenceSession:
			f.batcher.RecordSessionAlive(k.ID, p.Timestamp)
		case models.PresenceMachine:
			f.batcher.RecordMachineAlive(p.AccountID, k.ID, p.Timestamp)
		}
	}
}
