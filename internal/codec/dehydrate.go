package codec

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jlinden/jsonlcodec/internal/metrics"
	"github.com/jlinden/jsonlcodec/internal/wire"
)

// DehydrateOptions configures a Dehydrator, mirroring spec.md's producer
// options that are specific to dehydration (MaxDepth, OnError,
// FormatError) rather than transport (Serialize lives in produce.go).
type DehydrateOptions struct {
	// MaxDepth caps Path length; exceeding it rejects/errors the
	// offending leaf instead of awaiting/iterating it. Zero means
	// unlimited.
	MaxDepth int

	// OnError observes every user-supplied future rejection or sequence
	// iteration error, before it is formatted onto the wire. Optional.
	OnError func(cause error, path wire.Path)

	// FormatError maps an error to its wire payload. If nil, errors are
	// formatted as {"error": err.Error()}.
	FormatError func(error) any

	// Serialize maps a non-deferred leaf value to a JSON-encodable
	// representation before it is written to the payload, for domain
	// types (time.Time, custom structs) that aren't already plain JSON
	// values. If nil, values pass through unchanged.
	Serialize func(any) any

	// Metrics receives chunk-allocation/emission counts. A nil Recorder
	// (the zero value) is safe to leave unset.
	Metrics *metrics.Recorder
}

// Dehydrator walks a value tree, replacing deferred leaves (*Future,
// *Sequence) with placeholders plus chunk descriptors, and drives each
// leaf's background task that publishes its resolution as chunks (C4).
//
// One Dehydrator is created per outgoing stream; its chunk-id counter and
// pending set are therefore never shared across streams (spec.md §9,
// "Global state: none").
type Dehydrator struct {
	ctx  context.Context // cancelled when the outgoing stream should stop
	opts DehydrateOptions

	mu       sync.Mutex
	nextID   wire.ChunkID
	pending  map[wire.ChunkID]struct{}
	rootDone bool

	out       chan wire.RawChunk
	closeOnce sync.Once
	wg        sync.WaitGroup

	allocated atomic.Int64 // monotonic counter for metrics/tests only
}

// NewDehydrator creates a Dehydrator whose background leaf tasks stop
// emitting (without error) once ctx is done — the Go realization of
// racing every suspension point against the outgoing stream's
// cancelled-future.
func NewDehydrator(ctx context.Context, opts DehydrateOptions) *Dehydrator {
	return &Dehydrator{
		ctx:     ctx,
		opts:    opts,
		pending: make(map[wire.ChunkID]struct{}),
		out:     make(chan wire.RawChunk),
	}
}

// Chunks returns the channel chunks are emitted on. It closes once the
// pending set empties after the root's synchronous dehydration has
// completed (Close).
func (d *Dehydrator) Chunks() <-chan wire.RawChunk {
	return d.out
}

// Close marks the root dehydration as complete. It must be called
// exactly once, after the top-level Dehydrate call returns, so the
// Dehydrator knows "no more top-level work remains" (spec.md §4.4).
func (d *Dehydrator) Close() {
	d.mu.Lock()
	d.rootDone = true
	empty := len(d.pending) == 0
	d.mu.Unlock()
	if empty {
		d.closeOut()
	}
}

// Wait blocks until every background leaf task this Dehydrator launched
// has returned. Produce calls this before returning so a caller who has
// drained Chunks() can rely on no further goroutines touching shared
// state.
func (d *Dehydrator) Wait() {
	d.wg.Wait()
}

func (d *Dehydrator) allocate() wire.ChunkID {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.pending[id] = struct{}{}
	d.allocated.Add(1)
	pending := len(d.pending)
	d.mu.Unlock()
	d.opts.Metrics.Allocated()
	d.opts.Metrics.SetPending(pending)
	return id
}

func (d *Dehydrator) release(id wire.ChunkID) {
	d.mu.Lock()
	delete(d.pending, id)
	pending := len(d.pending)
	empty := pending == 0 && d.rootDone
	d.mu.Unlock()
	d.opts.Metrics.SetPending(pending)
	if empty {
		d.closeOut()
	}
}

func (d *Dehydrator) closeOut() {
	d.closeOnce.Do(func() { close(d.out) })
}

func (d *Dehydrator) emit(c wire.RawChunk) {
	select {
	case d.out <- c:
	case <-d.ctx.Done():
	}
}

// Dehydrate implements the algorithm of spec.md §4.4: futures and
// sequences become placeholders plus a descriptor and schedule
// background work; containers are copied one level shallow, substituting
// only directly-deferred entries; everything else passes through as-is.
func (d *Dehydrator) Dehydrate(value any, path wire.Path) wire.Dehydrated {
	switch v := value.(type) {
	case *Future:
		id := d.dehydratePromise(v, path)
		return wire.Dehydrated{
			Payload:     wire.Placeholder,
			Descriptors: []wire.Descriptor{{Key: nil, Kind: wire.KindPromise, ChunkID: id}},
		}
	case *Sequence:
		id := d.dehydrateSequence(v, path)
		return wire.Dehydrated{
			Payload:     wire.Placeholder,
			Descriptors: []wire.Descriptor{{Key: nil, Kind: wire.KindAsyncSequence, ChunkID: id}},
		}
	case map[string]any:
		return d.dehydrateMap(v, path)
	case []any:
		return d.dehydrateSlice(v, path)
	default:
		return wire.Dehydrated{Payload: d.serialize(value)}
	}
}

func (d *Dehydrator) serialize(v any) any {
	if d.opts.Serialize != nil {
		return d.opts.Serialize(v)
	}
	return v
}

func (d *Dehydrator) dehydrateMap(m map[string]any, path wire.Path) wire.Dehydrated {
	out := make(map[string]any, len(m))
	var descriptors []wire.Descriptor
	for k, v := range m {
		childPath := path.With(k)
		switch leaf := v.(type) {
		case *Future:
			id := d.dehydratePromise(leaf, childPath)
			out[k] = wire.Placeholder
			descriptors = append(descriptors, wire.Descriptor{Key: k, Kind: wire.KindPromise, ChunkID: id})
		case *Sequence:
			id := d.dehydrateSequence(leaf, childPath)
			out[k] = wire.Placeholder
			descriptors = append(descriptors, wire.Descriptor{Key: k, Kind: wire.KindAsyncSequence, ChunkID: id})
		default:
			out[k] = d.serialize(v)
		}
	}
	return wire.Dehydrated{Payload: out, Descriptors: descriptors}
}

func (d *Dehydrator) dehydrateSlice(s []any, path wire.Path) wire.Dehydrated {
	out := make([]any, len(s))
	var descriptors []wire.Descriptor
	for i, v := range s {
		childPath := path.With(i)
		switch leaf := v.(type) {
		case *Future:
			id := d.dehydratePromise(leaf, childPath)
			out[i] = wire.Placeholder
			descriptors = append(descriptors, wire.Descriptor{Key: i, Kind: wire.KindPromise, ChunkID: id})
		case *Sequence:
			id := d.dehydrateSequence(leaf, childPath)
			out[i] = wire.Placeholder
			descriptors = append(descriptors, wire.Descriptor{Key: i, Kind: wire.KindAsyncSequence, ChunkID: id})
		default:
			out[i] = d.serialize(v)
		}
	}
	return wire.Dehydrated{Payload: out, Descriptors: descriptors}
}

func (d *Dehydrator) exceedsMaxDepth(path wire.Path) bool {
	return d.opts.MaxDepth > 0 && len(path) > d.opts.MaxDepth
}

func (d *Dehydrator) formatErrorPayload(cause error) any {
	if d.opts.FormatError != nil {
		return d.opts.FormatError(cause)
	}
	return map[string]string{"error": cause.Error()}
}

// dehydratePromise allocates a chunk-id for f and launches the
// background task that races f against the outgoing stream's
// cancellation, per spec.md's "Promise leaf" algorithm.
func (d *Dehydrator) dehydratePromise(f *Future, path wire.Path) wire.ChunkID {
	id := d.allocate()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(id)

		var (
			value   any
			cause   error
			isDepth bool
		)
		if d.exceedsMaxDepth(path) {
			cause = &MaxDepthError{Path: path, MaxDepth: d.opts.MaxDepth}
			isDepth = true
		} else {
			select {
			case <-f.Done():
				value, cause = f.Result()
			case <-d.ctx.Done():
				return // outgoing stream cancelled: swallow, no terminal chunk
			}
		}

		if cause != nil {
			if !isDepth && d.opts.OnError != nil {
				d.opts.OnError(cause, path)
			}
			chunk, err := wire.PromiseRejectedChunk(id, d.formatErrorPayload(cause))
			if err != nil {
				return
			}
			d.opts.Metrics.Emitted("promise", "rejected")
			d.emit(chunk)
			return
		}

		chunk, err := wire.PromiseFulfilledChunk(id, d.Dehydrate(value, path))
		status := "fulfilled"
		if err != nil {
			chunk, err = wire.PromiseRejectedChunk(id, d.formatErrorPayload(err))
			if err != nil {
				return
			}
			status = "rejected"
		}
		d.opts.Metrics.Emitted("promise", status)
		d.emit(chunk)
	}()
	return id
}

// dehydrateSequence allocates a chunk-id for seq and launches the
// background task that drives it to completion, per spec.md's "Sequence
// leaf" algorithm.
func (d *Dehydrator) dehydrateSequence(seq *Sequence, path wire.Path) wire.ChunkID {
	id := d.allocate()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.release(id)

		if d.exceedsMaxDepth(path) {
			chunk, err := wire.SequenceErrorChunk(id, d.formatErrorPayload(&MaxDepthError{Path: path, MaxDepth: d.opts.MaxDepth}))
			if err == nil {
				d.opts.Metrics.Emitted("sequence", "error")
				d.emit(chunk)
			}
			return
		}

		for {
			value, done, cause := seq.Next(d.ctx)
			if cause != nil && d.ctx.Err() != nil {
				return // outgoing stream cancelled mid-iteration: swallow
			}
			if cause != nil {
				if d.opts.OnError != nil {
					d.opts.OnError(cause, path)
				}
				chunk, mErr := wire.SequenceErrorChunk(id, d.formatErrorPayload(cause))
				if mErr == nil {
					d.opts.Metrics.Emitted("sequence", "error")
					d.emit(chunk)
				}
				return
			}
			if done {
				d.opts.Metrics.Emitted("sequence", "done")
				d.emit(wire.SequenceDoneChunk(id))
				return
			}
			chunk, mErr := wire.SequenceValueChunk(id, d.Dehydrate(value, path))
			if mErr != nil {
				chunk, mErr = wire.SequenceErrorChunk(id, d.formatErrorPayload(mErr))
				if mErr != nil {
					return
				}
				d.opts.Metrics.Emitted("sequence", "error")
				d.emit(chunk)
				return
			}
			d.opts.Metrics.Emitted("sequence", "value")
			d.emit(chunk)
		}
	}()
	return id
}
