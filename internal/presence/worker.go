package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/happier-dev/happier-sub002/internal/models"
)

const readCount = 128

// WorkerConfig carries the timing knobs for one consumer process.
type WorkerConfig struct {
	Consumer      string
	FlushInterval time.Duration
	ReclaimIdle   time.Duration
	ReadBlock     time.Duration
}

type ackRef struct {
	id  string
	key Key
}

// Worker consumes the durable presence queue as one member of a consumer
// group: reclaim stuck entries, read new ones, coalesce them through the
// batcher, and on a timer flush to storage then ack what was flushed. Acking
// strictly after the durable write gives at-least-once delivery; max-wins
// coalescing makes the inevitable duplicates harmless.
type Worker struct {
	stream  stream
	store   Store
	batcher *Batcher
	cfg     WorkerConfig
	logger  *slog.Logger

	// mu orders batcher records + ack bookkeeping against the flush snapshot,
	// so every pending ack's entry is visible in the snapshot.
	mu          sync.Mutex
	pendingAcks []ackRef
}

func NewWorker(s stream, store Store, batcher *Batcher, cfg WorkerConfig) *Worker {
	return &Worker{
		stream:  s,
		store:   store,
		batcher: batcher,
		cfg:     cfg,
		logger:  slog.Default().With("component", "presence-worker", "consumer", cfg.Consumer),
	}
}

// Run blocks until ctx is canceled, then performs one final flush+ack so the
// last batch is not lost on shutdown.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.stream.EnsureGroup(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.flush(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(w.cfg.ReclaimIdle)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.reclaim(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	for ctx.Err() == nil {
		msgs, err := w.stream.ReadGroup(ctx, w.cfg.Consumer, readCount, w.cfg.ReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Error("stream read failed", "error", err)
			select {
			case <-time.After(w.cfg.ReadBlock):
			case <-ctx.Done():
			}
			continue
		}
		w.route(ctx, msgs)
	}

	wg.Wait()

	// Final flush runs on a fresh context since ctx is already canceled.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	w.flush(flushCtx)
	return nil
}

// reclaim picks up entries claimed by a dead consumer and routes them exactly
// like fresh reads; they are acked by the next flush. Failures are logged and
// retried on the next tick.
func (w *Worker) reclaim(ctx context.Context) {
	msgs, err := w.stream.AutoClaim(ctx, w.cfg.Consumer, w.cfg.ReclaimIdle, readCount)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("reclaim failed", "error", err)
		}
		return
	}
	if len(msgs) > 0 {
		w.logger.Info("reclaimed idle entries", "count", len(msgs))
		w.route(ctx, msgs)
	}
}

func (w *Worker) route(ctx context.Context, msgs []redis.XMessage) {
	for _, m := range msgs {
		entry, ok := parseStreamEntry(m.Values)
		if !ok {
			// Poison: ack immediately so it can't block the queue.
			w.logger.Warn("dropping malformed stream entry", "stream_id", m.ID)
			if err := w.stream.Ack(ctx, m.ID); err != nil {
				w.logger.Error("failed to ack poison entry", "error", err)
			}
			continue
		}

		w.mu.Lock()
		var key Key
		switch entry.Kind {
		case models.PresenceSession:
			w.batcher.RecordSessionAlive(entry.EntityID, entry.Timestamp)
			key = Key{Kind: models.PresenceSession, ID: entry.EntityID}
		case models.PresenceMachine:
			w.batcher.RecordMachineAlive(entry.AccountID, entry.EntityID, entry.Timestamp)
			key = Key{Kind: models.PresenceMachine, ID: entry.EntityID}
		}
		w.pendingAcks = append(w.pendingAcks, ackRef{id: m.ID, key: key})
		w.mu.Unlock()
	}
}

// flush snapshots the batcher, writes the snapshot, commits what succeeded,
// and acks every entry whose write is durable. Entries whose write failed
// keep both their batcher state and their pending ack for the next attempt.
func (w *Worker) flush(ctx context.Context) {
	w.mu.Lock()
	snapshot := w.batcher.Snapshot()
	acks := w.pendingAcks
	w.pendingAcks = nil
	w.mu.Unlock()

	if len(snapshot) == 0 && len(acks) == 0 {
		return
	}

	succeeded := flushAll(ctx, w.store, snapshot, w.logger)
	w.batcher.Commit(succeeded)

	var ackIDs []string
	var retry []ackRef
	for _, a := range acks {
		// An entry absent from the snapshot was committed by an earlier
		// flush whose ack failed; it is durable and safe to ack.
		if _, inSnap := snapshot[a.key]; !inSnap {
			ackIDs = append(ackIDs, a.id)
			continue
		}
		if _, ok := succeeded[a.key]; ok {
			ackIDs = append(ackIDs, a.id)
		} else {
			retry = append(retry, a)
		}
	}

	if err := w.stream.Ack(ctx, ackIDs...); err != nil {
		w.logger.Error("failed to ack flushed entries", "error", err)
		for _, id := range ackIDs {
			retry = append(retry, ackRef{id: id})
		}
	}

	if len(retry) > 0 {
		w.mu.Lock()
		w.pendingAcks = append(retry, w.pendingAcks...)
		w.mu.Unlock()
	}
}
