package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStartLaunchesAllWorkersWithDistinctIndices(t *testing.T) {
	const n = 4
	var seen [n]atomic.Bool

	p := Start(n, func(index int, stop <-chan struct{}) {
		seen[index].Store(true)
		<-stop
	})

	deadline := time.After(time.Second)
	for {
		all := true
		for i := range seen {
			if !seen[i].Load() {
				all = false
			}
		}
		if all {
			break
		}
		select {
		case <-deadline:
			t.Fatal("not all workers started")
		case <-time.After(time.Millisecond):
		}
	}

	p.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	p := Start(1, func(index int, stop <-chan struct{}) { <-stop })
	p.Stop()
	assert.NotPanics(t, func() { p.Stop() })
}
