package codec

import "context"

// cancelledSignal is the dedicated sentinel value a Sequence's
// cancelled-future resolves with. spec.md's design notes flag the
// reference implementation's use of a magic "cancelled" string as an
// open question; this type is the fix — Await/Settled only ever see
// this concrete type, never a string that could collide with a real
// payload.
type cancelledSignal struct{}

// seqEvent is one event flowing through a Sequence's internal channel:
// either a value, a clean completion, or an iteration error. Exactly one
// of the three describes the event.
type seqEvent struct {
	value any
	err   error
	done  bool
}

// Sequence is an in-memory lazy sequence with an external controller
// (C2, "Controlled Stream"). It is the Go shape of an async generator:
// SequenceController.Enqueue corresponds to `yield`, Close to returning,
// Error to throwing, and Sequence.Next to the consumer's `for await`.
//
// The companion cancelledFuture is what the controller's Enqueue, Close
// and Error race their send against — if the consumer releases the
// sequence without draining it, cancelledFuture resolves and the feeding
// side abandons its work instead of blocking forever on the channel.
type Sequence struct {
	events          chan seqEvent
	cancelledFuture *Future
}

// SequenceController is the producer-side handle for feeding a Sequence.
type SequenceController struct {
	seq          *Sequence
	terminated   bool
	terminatedMu chan struct{} // closed once a terminal event has been accepted
}

// NewSequence creates a Sequence and its controller, unbuffered so that
// Enqueue provides the same synchronous backpressure as an unbuffered Go
// channel send — the producer cannot outrun a consumer that never reads.
func NewSequence() (*Sequence, *SequenceController) {
	s := &Sequence{
		events:          make(chan seqEvent),
		cancelledFuture: NewFuture(),
	}
	return s, &SequenceController{seq: s, terminatedMu: make(chan struct{})}
}

// Enqueue delivers one value to the consumer. It blocks until the
// consumer calls Next, the sequence is cancelled, or ctx is done.
// Enqueueing after a terminal event (Close/Error) is a caller bug and
// panics, matching ReadableStreamDefaultController.enqueue throwing on
// "Cannot enqueue after close".
func (c *SequenceController) Enqueue(ctx context.Context, value any) error {
	if c.isTerminated() {
		panic("jsonlcodec: Enqueue called after Close or Error")
	}
	select {
	case c.seq.events <- seqEvent{value: value}:
		return nil
	case <-c.seq.cancelledFuture.Done():
		return ErrStreamInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals clean completion. Idempotent: a second Close or Error
// call is a no-op.
func (c *SequenceController) Close() {
	c.terminal(seqEvent{done: true})
}

// Error signals that iteration failed with cause.
func (c *SequenceController) Error(cause error) {
	c.terminal(seqEvent{err: cause})
}

func (c *SequenceController) terminal(ev seqEvent) {
	if c.isTerminated() {
		return
	}
	c.terminated = true
	close(c.terminatedMu)
	select {
	case c.seq.events <- ev:
	case <-c.seq.cancelledFuture.Done():
	}
}

func (c *SequenceController) isTerminated() bool {
	select {
	case <-c.terminatedMu:
		return true
	default:
		return false
	}
}

// Next blocks for the next value, returning done=true with a nil error
// on clean completion, or a non-nil error on iteration failure or ctx
// cancellation.
func (s *Sequence) Next(ctx context.Context) (value any, done bool, err error) {
	select {
	case ev := <-s.events:
		if ev.done {
			return nil, true, nil
		}
		if ev.err != nil {
			return nil, true, ev.err
		}
		return ev.value, false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Cancel releases the sequence without draining it — the consumer walks
// away early. Idempotent.
func (s *Sequence) Cancel() {
	s.cancelledFuture.Resolve(cancelledSignal{})
}

// IsCancelled reports whether Cancel has already been called.
func (s *Sequence) IsCancelled() bool {
	return s.cancelledFuture.Settled()
}

// CancelledDone returns a channel closed once Cancel has been called, for
// producers selecting alongside their own next()/enqueue suspension
// points.
func (s *Sequence) CancelledDone() <-chan struct{} {
	return s.cancelledFuture.Done()
}
