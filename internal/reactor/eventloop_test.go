package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueInLoopRunsTaskFromAnotherGoroutine(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	go l.Loop()
	defer l.Quit()

	done := make(chan struct{})
	l.QueueInLoop(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued task never ran")
	}
}

// TestRunInLoopDefersRepostedTaskToNextIteration asserts spec.md section
// 4.3 rule (b): a task posted via RunInLoop from inside a task already
// being drained runs on the loop's next iteration, not recursively
// within the same drain pass — RunInLoop has no synchronous fast path
// because the loop cannot safely distinguish "the caller is already on
// my goroutine" from "some other goroutine happens to be calling in
// while I'm mid-dispatch".
func TestRunInLoopDefersRepostedTaskToNextIteration(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	go l.Loop()
	defer l.Quit()

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	outerDone := make(chan struct{})
	innerDone := make(chan struct{})

	l.QueueInLoop(func() {
		l.RunInLoop(func() {
			record("inner")
			close(innerDone)
		})
		record("outer")
		close(outerDone)
	})

	select {
	case <-outerDone:
	case <-time.After(time.Second):
		t.Fatal("outer task never ran")
	}
	select {
	case <-innerDone:
	case <-time.After(time.Second):
		t.Fatal("reposted inner task never ran")
	}

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	assert.Equal(t, []string{"outer", "inner"}, got)
}

func TestQuitStopsLoop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	stopped := make(chan struct{})
	go func() {
		l.Loop()
		close(stopped)
	}()

	for !l.IsRunning() {
		time.Sleep(time.Millisecond)
	}

	l.Quit()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Loop did not return after Quit")
	}
}
