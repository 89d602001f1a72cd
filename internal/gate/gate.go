// Package gate provides the counting semaphore that bounds how many
// transcription requests may be in flight at once. Excess callers wait in
// FIFO order.
package gate

import (
	"context"
	"sync"
)

type Gate struct {
	mu          sync.Mutex
	limit       int
	outstanding int
	waiters     []chan struct{}
}

func New(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{limit: limit}
}

// TryAcquire takes a permit only when one is immediately available, without
// queueing. It never jumps ahead of existing waiters.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.outstanding < g.limit && len(g.waiters) == 0 {
		g.outstanding++
		return true
	}
	return false
}

// Acquire takes a permit, suspending the caller when the gate is saturated.
// Waiters are granted permits in arrival order. A cancelled context removes
// the caller from the queue; if the permit was already granted during
// cancellation it is handed to the next waiter.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.outstanding < g.limit {
		g.outstanding++
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.waiters = append(g.waiters, ch)
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.waiters {
			if w == ch {
				g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
				g.mu.Unlock()
				return ctx.Err()
			}
		}
		g.mu.Unlock()
		// Granted while cancelling: pass the permit on.
		g.Release()
		return ctx.Err()
	}
}

// Release returns a permit. When the queue is non-empty the permit is handed
// directly to the head waiter, keeping the outstanding count constant.
func (g *Gate) Release() {
	g.mu.Lock()
	if len(g.waiters) > 0 {
		head := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		close(head)
		return
	}
	if g.outstanding > 0 {
		g.outstanding--
	}
	g.mu.Unlock()
}

// Outstanding reports how many permits are currently held.
func (g *Gate) Outstanding() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding
}

// Waiting reports how many callers are queued.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiters)
}
