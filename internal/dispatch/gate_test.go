package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_BoundsConcurrency(t *testing.T) {
	gate := NewGate(2)
	group := NewGroup(gate)

	var running, peak int32
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		group.Go(context.Background(), func(ctx context.Context) error {
			n := atomic.AddInt32(&running, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&running, -1)
			return nil
		})
	}

	results := group.Wait()
	assert.Len(t, results, 20)
	assert.Zero(t, Failed(results))
	assert.LessOrEqual(t, peak, int32(2))
}

func TestGate_AcquireRespectsContext(t *testing.T) {
	gate := NewGate(1)
	require.NoError(t, gate.Acquire(context.Background()))
	defer gate.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := gate.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_RunReleasesOnError(t *testing.T) {
	gate := NewGate(1)
	boom := errors.New("boom")

	err := gate.Run(context.Background(), func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, gate.InUse())
}

func TestGroup_FailureDoesNotCancelSiblings(t *testing.T) {
	gate := NewGate(3)
	group := NewGroup(gate)

	var succeeded int32
	boom := errors.New("task failed")
	for i := 0; i < 5; i++ {
		i := i
		group.Go(context.Background(), func(ctx context.Context) error {
			if i == 2 {
				return boom
			}
			atomic.AddInt32(&succeeded, 1)
			return nil
		})
	}

	results := group.Wait()
	require.Len(t, results, 5)
	assert.Equal(t, 1, Failed(results))
	assert.Equal(t, int32(4), atomic.LoadInt32(&succeeded))
	assert.ErrorIs(t, results[2].Err, boom)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[4].Err)
}

func TestGroup_PanicIsContainedAndPermitReleased(t *testing.T) {
	gate := NewGate(1)
	group := NewGroup(gate)

	group.Go(context.Background(), func(ctx context.Context) error {
		panic("unexpected")
	})
	group.Go(context.Background(), func(ctx context.Context) error {
		return nil
	})

	results := group.Wait()
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "panicked")
	assert.NoError(t, results[1].Err)
	assert.Zero(t, gate.InUse())
}
