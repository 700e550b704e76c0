package reactor

import (
	"sync/atomic"

	"github.com/vldzyzy/boneserver/internal/workerpool"
)

// LoopPool owns N I/O event loops, each running on its own goroutine via
// the shared internal/workerpool primitive, and hands them out in strict
// round-robin order (spec.md section 4.4).
type LoopPool struct {
	loops []*EventLoop
	next  atomic.Uint64
	pool  *workerpool.Pool
}

// NewLoopPool constructs n worker loops. If n == 0, GetNext returns nil
// and callers are expected to fall back to the acceptor loop, per
// spec.md section 4.4.
func NewLoopPool(n int) (*LoopPool, error) {
	lp := &LoopPool{}
	for i := 0; i < n; i++ {
		l, err := New()
		if err != nil {
			lp.closeStarted()
			return nil, err
		}
		lp.loops = append(lp.loops, l)
	}
	return lp, nil
}

func (lp *LoopPool) closeStarted() {
	for _, l := range lp.loops {
		_ = l.Close()
	}
}

// Start launches every worker loop's Loop() on its own goroutine and
// returns once all of them have begun running, matching spec.md's "pool
// starts all worker loops before start returns".
func (lp *LoopPool) Start() {
	started := make(chan struct{}, len(lp.loops))
	loops := lp.loops

	lp.pool = workerpool.Start(len(loops), func(index int, stop <-chan struct{}) {
		started <- struct{}{}
		loops[index].Loop()
	})

	for range lp.loops {
		<-started
	}
}

// GetNext returns the next loop in round-robin order via an atomic
// counter, or nil if the pool has zero loops.
func (lp *LoopPool) GetNext() *EventLoop {
	if len(lp.loops) == 0 {
		return nil
	}
	i := lp.next.Add(1) - 1
	return lp.loops[int(i)%len(lp.loops)]
}

// Loops returns every worker loop, in construction order.
func (lp *LoopPool) Loops() []*EventLoop { return lp.loops }

// Stop requests every worker loop to quit and waits for their
// goroutines to return. Each EventLoop's own Quit flag is the real
// signal; the workerpool stop channel is closed alongside it for
// consistency even though Loop() does not itself observe it.
func (lp *LoopPool) Stop() {
	for _, l := range lp.loops {
		l.Quit()
	}
	if lp.pool != nil {
		lp.pool.Stop()
	}
	for _, l := range lp.loops {
		_ = l.Close()
	}
}
