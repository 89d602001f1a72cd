package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireBelowLimit(t *testing.T) {
	g := New(2)

	assert.Nil(t, g.Acquire(context.Background()))
	assert.Nil(t, g.Acquire(context.Background()))
	assert.Equal(t, 2, g.Outstanding())
	assert.Equal(t, 0, g.Waiting())

	g.Release()
	g.Release()
	assert.Equal(t, 0, g.Outstanding())
}

func TestConcurrencyBound(t *testing.T) {
	g := New(2)

	var inFlight int32
	var peak int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			assert.Nil(t, g.Acquire(context.Background()))
			defer g.Release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 0, g.Outstanding())
	assert.Equal(t, 0, g.Waiting())
}

func TestWaitersServedInArrivalOrder(t *testing.T) {
	g := New(1)

	assert.Nil(t, g.Acquire(context.Background()))

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			assert.Nil(t, g.Acquire(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			g.Release()
		}()
		// Let each waiter enqueue before the next arrives.
		for g.Waiting() != i+1 {
			time.Sleep(time.Millisecond)
		}
	}

	g.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestAcquireCancelled(t *testing.T) {
	g := New(1)

	assert.Nil(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Acquire(ctx)
	}()

	for g.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	assert.Equal(t, context.Canceled, <-errCh)
	assert.Equal(t, 0, g.Waiting())

	// The held permit is unaffected by the cancelled waiter.
	g.Release()
	assert.Equal(t, 0, g.Outstanding())
}

func TestTryAcquire(t *testing.T) {
	g := New(1)

	assert.True(t, g.TryAcquire())
	assert.Equal(t, 1, g.Outstanding())

	// Saturated: no permit, no queueing.
	assert.False(t, g.TryAcquire())
	assert.Equal(t, 0, g.Waiting())

	g.Release()
	assert.True(t, g.TryAcquire())
	g.Release()
}

func TestTryAcquireNeverJumpsWaiters(t *testing.T) {
	g := New(1)

	assert.Nil(t, g.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		assert.Nil(t, g.Acquire(context.Background()))
		close(acquired)
	}()

	for g.Waiting() != 1 {
		time.Sleep(time.Millisecond)
	}

	g.Release()
	<-acquired

	// The released permit went to the queued waiter, not a late TryAcquire.
	assert.False(t, g.TryAcquire())
	g.Release()
}

func TestReleaseFlooredAtZero(t *testing.T) {
	g := New(2)

	g.Release()
	assert.Equal(t, 0, g.Outstanding())

	assert.Nil(t, g.Acquire(context.Background()))
	assert.Equal(t, 1, g.Outstanding())
}
