// Package inference implements the batching inference dispatcher of
// spec.md section 4.12 (C13), grounded on the source project's
// inference/boneage_inference.h BoneAgeInferencer: a bounded request
// queue drained by a fixed worker pool, batched per the adaptive
// batch-size algorithm, with completions posted back to the task's
// originating caller exactly once.
package inference

import (
	"encoding/json"
	"errors"

	jsoniter "github.com/json-iterator/go"

	"github.com/vldzyzy/boneserver/internal/apperr"
	"github.com/vldzyzy/boneserver/internal/workerpool"
)

var json2 = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrQueueFull is returned by Submit when the bounded queue is at
// capacity (spec.md section 4.12, Q_MAX).
var ErrQueueFull = errors.New("inference: queue full")

// Result is the decoded (or failed) outcome of one inference task,
// serialized to JSON for the HTTP response body.
type Result struct {
	ResultStr string `json:"result_str"`
}

// Task is one queued inference request: the raw image bytes and the
// callback invoked exactly once with the Result once processed, or
// dropped silently if the dispatcher shuts down first (spec.md section
// 9, Open Question on shutdown semantics — resolved in DESIGN.md: queued
// tasks are dropped without firing on_complete, matching the source
// project's Shutdown() which tears down the pipeline without draining
// request_queue_).
type Task struct {
	ID         string
	RawImage   []byte
	OnComplete func(Result)
}

const (
	// batchMax bounds the adaptive batch size (spec.md section 4.12).
	batchMax = 8
)

// Predictor performs the actual batched classification. Production
// wiring constructs one over the loaded YOLO/classifier models;
// Dispatcher depends only on this narrow interface so tests can supply
// a fake.
type Predictor interface {
	PredictBatch(images [][]byte) []PredictOutcome
}

// PredictOutcome is one element of a PredictBatch result, allowing a
// per-image decode failure (spec.md section 4.12: "decode failure
// yields an empty result for that task, without failing the batch").
type PredictOutcome struct {
	ResultStr string
	Err       error
}

// Dispatcher is the batching FIFO queue plus its worker pool.
type Dispatcher struct {
	predictor Predictor

	queue    chan Task
	capacity int
	workers  int

	pool *workerpool.Pool
}

// New constructs a Dispatcher with the given queue capacity (Q_MAX) and
// worker count (M). It does not start workers; call Start.
func New(predictor Predictor, queueCapacity, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		predictor: predictor,
		queue:     make(chan Task, queueCapacity),
		capacity:  queueCapacity,
		workers:   workers,
	}
}

// Start launches the worker pool; each worker pulls pending tasks and
// forms adaptively-sized batches per spec.md section 4.12.
func (d *Dispatcher) Start() {
	d.pool = workerpool.Start(d.workers, d.runWorker)
}

// Stop signals every worker to return after its current batch, then
// drains (without firing callbacks on) any tasks still sitting in the
// queue, per the documented shutdown semantics.
func (d *Dispatcher) Stop() {
	if d.pool != nil {
		d.pool.Stop()
	}
	for {
		select {
		case <-d.queue:
		default:
			return
		}
	}
}

// Submit enqueues task, returning ErrQueueFull if the bounded queue is
// at capacity. Deliberately non-blocking rather than spec.md section
// 4.12's literal "submissions block when full" — see DESIGN.md's Open
// Questions for why a blocking Submit is unsafe here (the caller is
// always an I/O loop goroutine, and blocking it would freeze every
// other connection sharing that loop).
func (d *Dispatcher) Submit(t Task) error {
	select {
	case d.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// pow2Floor returns the largest power of two <= n, or 1 if n < 1.
func pow2Floor(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// batchSize implements spec.md section 4.12's adaptive batch-size
// formula: clamp(pow2_floor(ceil(pending/M)), 1, BATCH_MAX, pending).
func batchSize(pending, workerCount int) int {
	if pending <= 0 {
		return 0
	}
	perWorker := (pending + workerCount - 1) / workerCount
	size := pow2Floor(perWorker)
	size = clamp(size, 1, batchMax)
	if size > pending {
		size = pending
	}
	return size
}

// runWorker is one pool member: it blocks for the first task, then
// drains whatever else is immediately available (non-blocking) to form
// a batch, sized per batchSize, and dispatches it to the predictor.
func (d *Dispatcher) runWorker(_ int, stop <-chan struct{}) {
	for {
		var first Task
		select {
		case <-stop:
			return
		case first = <-d.queue:
		}

		batch := []Task{first}
		pending := len(d.queue) + 1
		want := batchSize(pending, d.workers)

		for len(batch) < want {
			select {
			case t := <-d.queue:
				batch = append(batch, t)
			default:
				want = len(batch)
			}
		}

		d.runBatch(batch)
	}
}

func (d *Dispatcher) runBatch(batch []Task) {
	images := make([][]byte, len(batch))
	for i, t := range batch {
		images[i] = t.RawImage
	}

	outcomes := d.predictor.PredictBatch(images)

	for i, t := range batch {
		if i >= len(outcomes) {
			t.OnComplete(Result{})
			continue
		}
		o := outcomes[i]
		if o.Err != nil {
			t.OnComplete(Result{})
			continue
		}
		t.OnComplete(Result{ResultStr: o.ResultStr})
	}
}

// EncodeResult renders a Result into the JSON wire format used by the
// /predict response body.
func EncodeResult(r Result) ([]byte, error) {
	b, err := json2.Marshal(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInferenceDecode, err)
	}
	return b, nil
}

// DecodeResult is exposed for tests exercising the wire format against
// the standard library's decoder, guarding against jsoniter/stdlib
// divergence.
func DecodeResult(b []byte) (Result, error) {
	var r Result
	err := json.Unmarshal(b, &r)
	return r, err
}
