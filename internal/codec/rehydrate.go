package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jlinden/jsonlcodec/internal/wire"
)

// RehydrateOptions configures a Rehydrator.
type RehydrateOptions struct {
	// OnError observes every protocol/async error a leaf settles with,
	// mirroring the producer side's OnError. Optional.
	OnError func(error)

	// FormatError maps a REJECTED/ERROR chunk's raw payload back into a
	// Go error. If nil, or it returns nil, the payload is wrapped in
	// AsyncError.
	FormatError func(json.RawMessage) error

	// Deserialize maps a direct non-deferred child value back to its
	// domain representation, the inverse of the producer's Serialize. If
	// nil, values pass through unchanged.
	Deserialize func(any) any
}

// Rehydrator reconstructs a value tree from a Head plus the chunks a
// Demuxer routes to it (C5). Each descriptor becomes a *Future or
// *Sequence immediately — before any of its chunks have arrived — so the
// caller can start consuming the tree right after the head line decodes,
// exactly as spec.md §4.5 requires.
type Rehydrator struct {
	ctx   context.Context
	demux *Demuxer
	opts  RehydrateOptions
	wg    sync.WaitGroup
}

// NewRehydrator creates a Rehydrator. ctx governs every leaf's background
// driver goroutine: when ctx is done, any leaf still waiting on its
// sub-stream settles with ctx.Err() instead of blocking forever.
func NewRehydrator(ctx context.Context, demux *Demuxer, opts RehydrateOptions) *Rehydrator {
	return &Rehydrator{ctx: ctx, demux: demux, opts: opts}
}

// Wait blocks until every leaf driver goroutine this Rehydrator launched
// has returned.
func (r *Rehydrator) Wait() {
	r.wg.Wait()
}

// RehydrateHead reconstructs the full top-level tree from a decoded head
// line, one independent Rehydrate call per top-level key.
func (r *Rehydrator) RehydrateHead(head wire.Head) map[string]any {
	out := make(map[string]any, len(head))
	for k, d := range head {
		out[k] = r.Rehydrate(d)
	}
	return out
}

// Rehydrate reconstructs one dehydrated value: the plain payload if there
// are no descriptors, or the payload with each descriptor's slot replaced
// by a live *Future/*Sequence, per spec.md §4.5. Any direct child that
// isn't a descriptor's slot passes through Deserialize, the consumer-side
// mirror of the producer's Serialize hook.
func (r *Rehydrator) Rehydrate(d wire.Dehydrated) any {
	value := d.Payload
	deferredKeys, deferredIndices := indexDescriptorSlots(d.Descriptors)

	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if deferredKeys[k] {
				continue
			}
			v[k] = r.deserialize(child)
		}
	case []any:
		for i, child := range v {
			if deferredIndices[i] {
				continue
			}
			v[i] = r.deserialize(child)
		}
	default:
		if len(d.Descriptors) == 0 {
			value = r.deserialize(value)
		}
	}

	for _, desc := range d.Descriptors {
		leaf := r.materialize(desc)
		if desc.Key == nil {
			value = leaf
			continue
		}
		switch key := desc.Key.(type) {
		case string:
			if m, ok := value.(map[string]any); ok {
				m[key] = leaf
			}
		case float64: // JSON numbers decode to float64; array indices too
			if arr, ok := value.([]any); ok {
				idx := int(key)
				if idx >= 0 && idx < len(arr) {
					arr[idx] = leaf
				}
			}
		case int:
			if arr, ok := value.([]any); ok && key >= 0 && key < len(arr) {
				arr[key] = leaf
			}
		}
	}
	return value
}

func indexDescriptorSlots(descs []wire.Descriptor) (keys map[string]bool, indices map[int]bool) {
	keys = make(map[string]bool, len(descs))
	indices = make(map[int]bool, len(descs))
	for _, d := range descs {
		switch k := d.Key.(type) {
		case string:
			keys[k] = true
		case float64:
			indices[int(k)] = true
		case int:
			indices[k] = true
		}
	}
	return keys, indices
}

func (r *Rehydrator) deserialize(v any) any {
	if r.opts.Deserialize != nil {
		return r.opts.Deserialize(v)
	}
	return v
}

func (r *Rehydrator) materialize(desc wire.Descriptor) any {
	sub := r.demux.Register(desc.ChunkID)
	switch desc.Kind {
	case wire.KindPromise:
		f := NewFuture()
		r.wg.Add(1)
		go r.drivePromise(f, desc.ChunkID, sub)
		return f
	case wire.KindAsyncSequence:
		seq, ctrl := NewSequence()
		r.wg.Add(1)
		go r.driveSequence(ctrl, desc.ChunkID, sub)
		return seq
	default:
		f := NewFuture()
		f.Reject(&ProtocolError{Detail: fmt.Sprintf("unknown descriptor kind %d", desc.Kind)})
		return f
	}
}

func (r *Rehydrator) reportError(err error) {
	if r.opts.OnError != nil {
		r.opts.OnError(err)
	}
}

func (r *Rehydrator) toError(raw json.RawMessage) error {
	if r.opts.FormatError != nil {
		if err := r.opts.FormatError(raw); err != nil {
			return err
		}
	}
	return &AsyncError{Raw: raw}
}

func (r *Rehydrator) drivePromise(f *Future, id wire.ChunkID, sub <-chan wire.RawChunk) {
	defer r.wg.Done()
	defer r.demux.Unregister(id)

	select {
	case c, ok := <-sub:
		if !ok {
			f.Reject(ErrStreamInterrupted)
			return
		}
		switch wire.PromiseStatus(c.Status) {
		case wire.PromiseFulfilled:
			var payload wire.Dehydrated
			if err := json.Unmarshal(c.Payload, &payload); err != nil {
				protoErr := &ProtocolError{Detail: "decoding promise payload: " + err.Error()}
				r.reportError(protoErr)
				f.Reject(protoErr)
				return
			}
			f.Resolve(r.Rehydrate(payload))
		case wire.PromiseRejected:
			cause := r.toError(c.Payload)
			r.reportError(cause)
			f.Reject(cause)
		default:
			protoErr := &ProtocolError{Detail: fmt.Sprintf("unexpected promise status %d", c.Status)}
			r.reportError(protoErr)
			f.Reject(protoErr)
		}
	case <-r.ctx.Done():
		f.Reject(r.ctx.Err())
	}
}

func (r *Rehydrator) driveSequence(ctrl *SequenceController, id wire.ChunkID, sub <-chan wire.RawChunk) {
	defer r.wg.Done()
	defer r.demux.Unregister(id)

	for {
		select {
		case c, ok := <-sub:
			if !ok {
				ctrl.Error(ErrStreamInterrupted)
				return
			}
			switch wire.SequenceStatus(c.Status) {
			case wire.SequenceValue:
				var payload wire.Dehydrated
				if err := json.Unmarshal(c.Payload, &payload); err != nil {
					protoErr := &ProtocolError{Detail: "decoding sequence payload: " + err.Error()}
					r.reportError(protoErr)
					ctrl.Error(protoErr)
					return
				}
				if err := ctrl.Enqueue(r.ctx, r.Rehydrate(payload)); err != nil {
					return // consumer cancelled the sequence or ctx ended
				}
			case wire.SequenceDone:
				ctrl.Close()
				return
			case wire.SequenceError:
				cause := r.toError(c.Payload)
				r.reportError(cause)
				ctrl.Error(cause)
				return
			default:
				protoErr := &ProtocolError{Detail: fmt.Sprintf("unexpected sequence status %d", c.Status)}
				r.reportError(protoErr)
				ctrl.Error(protoErr)
				return
			}
		case <-r.ctx.Done():
			ctrl.Error(r.ctx.Err())
			return
		}
	}
}
