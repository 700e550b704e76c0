package inference

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchSizeFormula(t *testing.T) {
	cases := []struct {
		pending, workers, want int
	}{
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{9, 4, 2},
		{100, 4, 8},
		{3, 1, 2},
	}
	for _, c := range cases {
		got := batchSize(c.pending, c.workers)
		assert.Equal(t, c.want, got, "pending=%d workers=%d", c.pending, c.workers)
	}
}

type countingPredictor struct {
	mu    sync.Mutex
	sizes []int
}

func (p *countingPredictor) PredictBatch(images [][]byte) []PredictOutcome {
	p.mu.Lock()
	p.sizes = append(p.sizes, len(images))
	p.mu.Unlock()

	out := make([]PredictOutcome, len(images))
	for i := range images {
		out[i] = PredictOutcome{ResultStr: "ok"}
	}
	return out
}

func TestSubmitInvokesCallbackExactlyOnce(t *testing.T) {
	pred := &countingPredictor{}
	d := New(pred, 64, 2)
	d.Start()
	defer d.Stop()

	const n = 50
	var calls int64
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		require.NoError(t, d.Submit(Task{
			RawImage: []byte("img"),
			OnComplete: func(r Result) {
				atomic.AddInt64(&calls, 1)
				assert.Equal(t, "ok", r.ResultStr)
				wg.Done()
			},
		}))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all callbacks")
	}

	assert.Equal(t, int64(n), atomic.LoadInt64(&calls))
}

func TestSubmitReturnsErrQueueFullWhenSaturated(t *testing.T) {
	pred := &countingPredictor{}
	d := New(pred, 1, 1)

	require.NoError(t, d.Submit(Task{RawImage: []byte("a"), OnComplete: func(Result) {}}))
	err := d.Submit(Task{RawImage: []byte("b"), OnComplete: func(Result) {}})
	assert.Equal(t, ErrQueueFull, err)
}

func TestDecodeFailureYieldsEmptyResultWithoutFailingBatch(t *testing.T) {
	pred := &failingPredictor{failIndex: 1}
	d := New(pred, 8, 1)
	d.Start()
	defer d.Stop()

	results := make([]Result, 3)
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		idx := i
		require.NoError(t, d.Submit(Task{
			RawImage: []byte("x"),
			OnComplete: func(r Result) {
				results[idx] = r
				wg.Done()
			},
		}))
	}
	wg.Wait()

	assert.Equal(t, "", results[1].ResultStr)
}

type failingPredictor struct {
	failIndex int
}

func (p *failingPredictor) PredictBatch(images [][]byte) []PredictOutcome {
	out := make([]PredictOutcome, len(images))
	for i := range images {
		if i == p.failIndex {
			out[i] = PredictOutcome{Err: assertError{}}
			continue
		}
		out[i] = PredictOutcome{ResultStr: "ok"}
	}
	return out
}

type assertError struct{}

func (assertError) Error() string { return "decode failed" }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b, err := EncodeResult(Result{ResultStr: "42"})
	require.NoError(t, err)

	r, err := DecodeResult(b)
	require.NoError(t, err)
	assert.Equal(t, "42", r.ResultStr)
}
