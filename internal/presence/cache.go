package presence

import (
	"context"
	"sync"
	"time"
)

// AccessChecker answers whether an account may report liveness for an entity.
// It is the external access-control collaborator; the cache calls it at most
// once per TTL window per entity.
type AccessChecker interface {
	CanAccessSession(ctx context.Context, accountID, sessionID string) (bool, error)
	CanAccessMachine(ctx context.Context, accountID, machineID string) (bool, error)
}

type activityEntry struct {
	lastFlushed int64
	inactive    bool
	expires     time.Time
}

// ActivityCache is a read-through TTL cache gating the liveness path. A hit
// is trusted within the TTL; a miss triggers one access check and caches only
// success (a rejection is retried on the next ping, since permissions can
// change). QueueSessionUpdate/QueueMachineUpdate also decide whether a ping
// is worth a DB write at all, bounding write volume under rapid pings.
type ActivityCache struct {
	mu        sync.Mutex
	checker   AccessChecker
	ttl       time.Duration
	threshold time.Duration
	now       func() time.Time
	sessions  map[string]*activityEntry
	machines  map[string]*activityEntry
}

func NewActivityCache(checker AccessChecker, ttl, threshold time.Duration) *ActivityCache {
	return &ActivityCache{
		checker:   checker,
		ttl:       ttl,
		threshold: threshold,
		now:       time.Now,
		sessions:  make(map[string]*activityEntry),
		machines:  make(map[string]*activityEntry),
	}
}

// QueueSessionUpdate reports whether a liveness write for the session is
// warranted. Returns false with nil error when the ping is valid but too
// close to the last flushed timestamp.
func (c *ActivityCache) QueueSessionUpdate(ctx context.Context, accountID, sessionID string, ts int64) (bool, error) {
	return c.queue(ctx, c.sessions, cacheKey(accountID, sessionID), ts, func() (bool, error) {
		return c.checker.CanAccessSession(ctx, accountID, sessionID)
	}, false)
}

// QueueMachineUpdate is QueueSessionUpdate for machines, with one extra rule:
// an entry marked inactive forces a write regardless of the timestamp delta,
// so a restarted machine flips back to active promptly.
func (c *ActivityCache) QueueMachineUpdate(ctx context.Context, accountID, machineID string, ts int64) (bool, error) {
	return c.queue(ctx, c.machines, cacheKey(accountID, machineID), ts, func() (bool, error) {
		return c.checker.CanAccessMachine(ctx, accountID, machineID)
	}, true)
}

// MarkMachineInactive records that the machine was observed inactive (e.g. by
// a liveness reaper), so the next ping writes through immediately.
func (c *ActivityCache) MarkMachineInactive(accountID, machineID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.machines[cacheKey(accountID, machineID)]; ok {
		e.inactive = true
	}
}

func (c *ActivityCache) queue(ctx context.Context, entries map[string]*activityEntry, key string, ts int64, check func() (bool, error), honorInactive bool) (bool, error) {
	c.mu.Lock()
	e, ok := entries[key]
	if ok && c.now().After(e.expires) {
		delete(entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		// Miss: validate access outside the lock, cache success only.
		allowed, err := check()
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, ErrAccessDenied
		}
		c.mu.Lock()
		e, ok = entries[key]
		if !ok {
			e = &activityEntry{expires: c.now().Add(c.ttl)}
			entries[key] = e
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	force := honorInactive && e.inactive
	if !force && ts-e.lastFlushed < c.threshold.Milliseconds() {
		return false, nil
	}
	e.lastFlushed = ts
	e.inactive = false
	return true, nil
}

func cacheKey(accountID, entityID string) string {
	return accountID + ":" + entityID
}
