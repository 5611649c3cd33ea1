package codec

import (
	"context"
	"sync"
)

// Future is a single-resolve/single-reject rendezvous point (C1,
// "Deferred" in spec terms). It is the Go shape of a JS Promise: exactly
// one of Resolve or Reject wins, later calls are silently ignored, and
// Await blocks until a result is available or the context is cancelled.
//
// The zero value is not usable — construct with NewFuture.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewFuture returns a ready-to-use Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve fulfills the future with value. Idempotent: only the first
// Resolve or Reject call has any effect.
func (f *Future) Resolve(value any) {
	f.once.Do(func() {
		f.value = value
		close(f.done)
	})
}

// Reject fails the future with cause. Idempotent alongside Resolve.
func (f *Future) Reject(cause error) {
	f.once.Do(func() {
		f.err = cause
		close(f.done)
	})
}

// Await blocks until the future is resolved or rejected, or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed once the future settles, for callers
// that want to select on it alongside other events (e.g. the
// dehydrator racing a user future against stream cancellation).
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether Resolve or Reject has already run, without
// blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the settled value/error. It must only be called after
// Settled reports true (or after Await/Done unblocks) — calling it on a
// pending future returns the zero value, not an error, by design: this
// is an unchecked fast path for code that already synchronized on Done.
func (f *Future) Result() (any, error) {
	return f.value, f.err
}
