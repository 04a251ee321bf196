package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Coordinator collects shutdown hooks and runs them concurrently when the
// process is asked to stop, waiting for all of them. Hooks that need an
// in-flight flush to complete (the presence worker, the HTTP server) register
// here instead of installing their own signal handlers.
type Coordinator struct {
	mu    sync.Mutex
	hooks []hook
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

func (c *Coordinator) Register(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every registered hook concurrently and waits for all of them.
// Individual failures are logged; the first error is returned after all hooks
// finish.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	hooks := make([]hook, len(c.hooks))
	copy(hooks, c.hooks)
	c.mu.Unlock()

	// A plain group: one hook failing must not cancel the others mid-flush.
	var g errgroup.Group
	for _, h := range hooks {
		h := h
		g.Go(func() error {
			if err := h.fn(ctx); err != nil {
				slog.Error("shutdown hook failed", "hook", h.name, "error", err)
				return err
			}
			slog.Info("shutdown hook completed", "hook", h.name)
			return nil
		})
	}
	return g.Wait()
}
