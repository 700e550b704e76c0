// Package lifecycle adapts the teacher pack's httpserver/run.WaitNotify
// pattern (signal-driven blocking wait with a manual stop channel) to
// this server's single Start/Stop pair, so cmd/boneserver does not
// duplicate signal-handling boilerplate.
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Runner is anything with a blocking Start and an idempotent-enough
// Stop, matching *app.App and *tcp.Server.
type Runner interface {
	Start()
	Stop()
}

// WaitNotify launches r.Start() in its own goroutine and blocks until
// either an OS interrupt/terminate signal arrives or StopNotify is
// called, then calls r.Stop() and waits for Start to return.
type WaitNotify struct {
	r Runner

	m   sync.Mutex
	chn chan struct{}
}

// New returns a WaitNotify wrapping r.
func New(r Runner) *WaitNotify {
	return &WaitNotify{r: r}
}

// Run starts r and blocks until shutdown, returning once Start has
// fully returned.
func (w *WaitNotify) Run() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	w.initChan()

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.r.Start()
	}()

	select {
	case <-quit:
	case <-w.getChan():
	}

	w.r.Stop()
	<-done
}

// StopNotify requests shutdown from outside the signal path (e.g. a
// test or an administrative command).
func (w *WaitNotify) StopNotify() {
	w.m.Lock()
	defer w.m.Unlock()
	if w.chn != nil {
		close(w.chn)
		w.chn = nil
	}
}

func (w *WaitNotify) initChan() {
	w.m.Lock()
	defer w.m.Unlock()
	w.chn = make(chan struct{})
}

func (w *WaitNotify) getChan() <-chan struct{} {
	w.m.Lock()
	defer w.m.Unlock()
	return w.chn
}
