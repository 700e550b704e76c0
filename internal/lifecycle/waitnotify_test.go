package lifecycle

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRunner struct {
	started atomic.Bool
	stopped atomic.Bool
	block   chan struct{}
}

func (r *fakeRunner) Start() {
	r.started.Store(true)
	<-r.block
}

func (r *fakeRunner) Stop() {
	r.stopped.Store(true)
	close(r.block)
}

func TestStopNotifyUnblocksRun(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{})}
	w := New(r)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	deadline := time.After(time.Second)
	for !r.started.Load() {
		select {
		case <-deadline:
			t.Fatal("runner never started")
		case <-time.After(time.Millisecond):
		}
	}

	w.StopNotify()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after StopNotify")
	}

	assert.True(t, r.stopped.Load())
}
