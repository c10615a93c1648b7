package ollama

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// idleTimeout cancels a streaming attempt when no response bytes arrive for d.
// Every successful read through a wrapped body re-arms it. A nil *idleTimeout
// never expires.
type idleTimeout struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleTimeout(d time.Duration, cancel context.CancelFunc) *idleTimeout {
	t := &idleTimeout{d: d}
	t.timer = time.AfterFunc(d, func() {
		t.fired.Store(true)
		cancel()
	})
	return t
}

// Expired reports whether the timer fired and cancelled the attempt.
func (t *idleTimeout) Expired() bool {
	return t != nil && t.fired.Load()
}

func (t *idleTimeout) Stop() {
	if t != nil {
		t.timer.Stop()
	}
}

// Wrap returns rc with every read re-arming the timer.
func (t *idleTimeout) Wrap(rc io.ReadCloser) io.ReadCloser {
	return &idleReader{ReadCloser: rc, idle: t}
}

type idleReader struct {
	io.ReadCloser
	idle *idleTimeout
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 && !r.idle.Expired() {
		r.idle.timer.Reset(r.idle.d)
	}
	return n, err
}
