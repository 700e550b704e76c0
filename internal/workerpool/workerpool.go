// Package workerpool is the generic "run N goroutines until told to
// stop" primitive shared by the I/O loop pool (internal/reactor) and the
// inference worker pool (internal/inference). The source project split
// this concern into its own context/thread_pool.h + context/executor.h,
// used by both the event-loop pool and the inference engine; this
// package supplements that shared shape, which spec.md's distillation
// had folded separately into C5 and C13.
package workerpool

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// Worker is one pool member's entry point. It must return when stop is
// closed; the pool does not forcibly cancel a running Worker.
type Worker func(index int, stop <-chan struct{})

// Pool runs a fixed number of Worker goroutines and can be stopped once.
type Pool struct {
	group   *errgroup.Group
	stop    chan struct{}
	stopped sync.Once
}

// Start launches n goroutines, each running fn with its own index, and
// returns immediately; Stop blocks until all of them have returned.
func Start(n int, fn Worker) *Pool {
	p := &Pool{
		group: &errgroup.Group{},
		stop:  make(chan struct{}),
	}

	for i := 0; i < n; i++ {
		idx := i
		p.group.Go(func() error {
			fn(idx, p.stop)
			return nil
		})
	}

	return p
}

// Stop closes the shared stop channel, signaling every worker to
// return, then waits for them all to exit.
func (p *Pool) Stop() {
	p.stopped.Do(func() {
		close(p.stop)
	})
	_ = p.group.Wait()
}
