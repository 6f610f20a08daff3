package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Gate is a counting permit that bounds how many tasks run at once.
type Gate struct {
	permits chan struct{}
}

// NewGate creates a gate admitting up to size concurrent holders.
func NewGate(size int) *Gate {
	if size < 1 {
		size = 1
	}
	return &Gate{permits: make(chan struct{}, size)}
}

// Acquire blocks until a permit is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit. Must pair with a successful Acquire.
func (g *Gate) Release() {
	select {
	case <-g.permits:
	default:
		panic("dispatch: release without acquire")
	}
}

// Run executes fn while holding a permit. The permit is released on
// every exit path, panics included.
func (g *Gate) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// InUse reports how many permits are currently held.
func (g *Gate) InUse() int {
	return len(g.permits)
}

// Result is the outcome of one task dispatched through a Group.
type Result struct {
	Index int
	Err   error
}

// Group dispatches independent tasks through a shared gate and awaits
// them all. One task failing never cancels its siblings.
type Group struct {
	gate *Gate
	wg   sync.WaitGroup

	mu      sync.Mutex
	results []Result
	next    int
}

// NewGroup creates a group over gate.
func NewGroup(gate *Gate) *Group {
	return &Group{gate: gate}
}

// Go dispatches fn as a gated task. If ctx is done before a permit frees
// up, the task records the context error instead of running.
func (gr *Group) Go(ctx context.Context, fn func(ctx context.Context) error) {
	gr.mu.Lock()
	index := gr.next
	gr.next++
	gr.mu.Unlock()

	gr.wg.Add(1)
	go func() {
		defer gr.wg.Done()
		err := gr.gate.Run(ctx, func(ctx context.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task panicked: %v", r)
				}
			}()
			return fn(ctx)
		})

		gr.mu.Lock()
		gr.results = append(gr.results, Result{Index: index, Err: err})
		gr.mu.Unlock()
	}()
}

// Wait blocks until every dispatched task finished and returns their
// results ordered by dispatch index.
func (gr *Group) Wait() []Result {
	gr.wg.Wait()

	gr.mu.Lock()
	defer gr.mu.Unlock()
	results := make([]Result, len(gr.results))
	copy(results, gr.results)
	sort.Slice(results, func(i, j int) bool {
		return results[i].Index < results[j].Index
	})
	return results
}

// Failed counts results carrying an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
