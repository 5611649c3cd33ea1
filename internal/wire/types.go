// Package wire defines the on-the-wire data model for the jsonlcodec
// streaming protocol: chunk-ids, paths, dehydrated values, and the chunk
// events that carry promise/sequence results over a line-delimited JSON
// stream.
//
// Every type here is a plain value type with custom (Un)MarshalJSON —
// there is no behavior, no channels, no goroutines. The codec package
// builds the concurrency on top of these shapes.
package wire

import (
	"encoding/json"
	"fmt"
)

// ChunkID names a single deferred leaf's lifetime on the wire. The
// producer assigns these from a monotonically increasing counter
// starting at 0; they are opaque to the consumer.
type ChunkID = int64

// Kind tags whether a chunk-id resolves to a single value (Promise) or a
// lazy sequence of values (AsyncSequence). It is the sole discriminant
// between the two — never inferred by inspecting the payload shape.
type Kind int

const (
	KindPromise Kind = iota
	KindAsyncSequence
)

func (k Kind) String() string {
	switch k {
	case KindPromise:
		return "promise"
	case KindAsyncSequence:
		return "async_sequence"
	default:
		return fmt.Sprintf("wire.Kind(%d)", int(k))
	}
}

// PromiseStatus is the status code in a PROMISE chunk.
type PromiseStatus int

const (
	PromiseFulfilled PromiseStatus = 0
	PromiseRejected  PromiseStatus = 1
)

// SequenceStatus is the status code in an ASYNC_SEQUENCE chunk.
type SequenceStatus int

const (
	SequenceDone  SequenceStatus = 0
	SequenceValue SequenceStatus = 1
	SequenceError SequenceStatus = 2
)

// Path records the location of a value within the root tree, as an
// ordered sequence of string (map key) or int (array index) segments.
// Used for error reporting and depth checks.
type Path []any

// With returns a new Path with seg appended. Callers must treat Path as
// immutable — With always copies, so two recursive calls sharing a
// prefix never alias the same backing array.
func (p Path) With(seg any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = seg
	return out
}

func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	s := "$"
	for _, seg := range p {
		switch v := seg.(type) {
		case string:
			s += "." + v
		case int:
			s += fmt.Sprintf("[%d]", v)
		default:
			s += fmt.Sprintf(".%v", v)
		}
	}
	return s
}

// Placeholder is the literal wire value standing in for a deferred leaf
// inside a dehydrated payload. It is only a placeholder in the frame
// established by the enclosing Descriptor list — the same literal 0
// appearing elsewhere in a payload is an ordinary JSON number.
const Placeholder = 0

// Descriptor is one chunk reference found while dehydrating a value:
// Key is nil (the payload itself is the placeholder), an int (array
// index; a float64 once decoded from JSON), or a string (map key); Kind
// distinguishes promise from
// sequence; ChunkID names the chunk-id that will carry the resolution.
type Descriptor struct {
	Key     any
	Kind    Kind
	ChunkID ChunkID
}

// rawDescriptor is the 3-element wire shape [key, kind, chunk-id].
type rawDescriptor struct {
	Key     any
	Kind    int
	ChunkID ChunkID
}

func (d rawDescriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{d.Key, d.Kind, d.ChunkID})
}

func (d *rawDescriptor) UnmarshalJSON(b []byte) error {
	var arr [3]json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("wire: decoding descriptor: %w", err)
	}
	if err := json.Unmarshal(arr[0], &d.Key); err != nil {
		return fmt.Errorf("wire: decoding descriptor key: %w", err)
	}
	if err := json.Unmarshal(arr[1], &d.Kind); err != nil {
		return fmt.Errorf("wire: decoding descriptor kind: %w", err)
	}
	if err := json.Unmarshal(arr[2], &d.ChunkID); err != nil {
		return fmt.Errorf("wire: decoding descriptor chunk-id: %w", err)
	}
	return nil
}

// Dehydrated is the two-part result of dehydrating a value: a payload
// (passed through as-is for leaves, or a container with deferred entries
// replaced by Placeholder) plus the chunk descriptors needed to
// reconstruct it. Wire shape: [[payload], [key,kind,chunk-id]*].
type Dehydrated struct {
	Payload     any
	Descriptors []Descriptor
}

func (d Dehydrated) MarshalJSON() ([]byte, error) {
	arr := make([]any, 0, 1+len(d.Descriptors))
	arr = append(arr, [1]any{d.Payload})
	for _, desc := range d.Descriptors {
		arr = append(arr, rawDescriptor{Key: desc.Key, Kind: int(desc.Kind), ChunkID: desc.ChunkID})
	}
	return json.Marshal(arr)
}

func (d *Dehydrated) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("wire: decoding dehydrated value: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("wire: dehydrated value missing payload element")
	}
	var payloadArr [1]any
	if err := json.Unmarshal(raw[0], &payloadArr); err != nil {
		return fmt.Errorf("wire: decoding dehydrated payload: %w", err)
	}
	d.Payload = payloadArr[0]

	d.Descriptors = make([]Descriptor, 0, len(raw)-1)
	for _, r := range raw[1:] {
		var rd rawDescriptor
		if err := json.Unmarshal(r, &rd); err != nil {
			return err
		}
		d.Descriptors = append(d.Descriptors, Descriptor{Key: rd.Key, Kind: Kind(rd.Kind), ChunkID: rd.ChunkID})
	}
	return nil
}

// Head is the once-per-stream top-level dehydrated mapping, transmitted
// as the first line before any chunk.
type Head map[string]Dehydrated

// RawChunk is a parsed chunk line: [id, status, payload?]. Status is
// interpreted as a PromiseStatus or SequenceStatus by whichever side
// already knows the chunk-id's Kind (recorded when its sub-stream
// controller was created) — RawChunk itself carries no kind tag.
type RawChunk struct {
	ID      ChunkID
	Status  int
	Payload json.RawMessage
	HasPayload bool
}

func (c RawChunk) MarshalJSON() ([]byte, error) {
	if !c.HasPayload {
		return json.Marshal([]any{c.ID, c.Status})
	}
	return json.Marshal([3]any{c.ID, c.Status, json.RawMessage(c.Payload)})
}

func (c *RawChunk) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("wire: decoding chunk: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("wire: chunk has %d elements, want at least 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &c.ID); err != nil {
		return fmt.Errorf("wire: decoding chunk id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &c.Status); err != nil {
		return fmt.Errorf("wire: decoding chunk status: %w", err)
	}
	if len(raw) >= 3 {
		c.Payload = raw[2]
		c.HasPayload = true
	}
	return nil
}

// PromiseFulfilledChunk builds the wire chunk for a resolved future.
func PromiseFulfilledChunk(id ChunkID, payload Dehydrated) (RawChunk, error) {
	return marshalPayloadChunk(id, int(PromiseFulfilled), payload)
}

// PromiseRejectedChunk builds the wire chunk for a rejected future.
func PromiseRejectedChunk(id ChunkID, errPayload any) (RawChunk, error) {
	return marshalPayloadChunk(id, int(PromiseRejected), errPayload)
}

// SequenceValueChunk builds the wire chunk for one emitted sequence item.
func SequenceValueChunk(id ChunkID, payload Dehydrated) (RawChunk, error) {
	return marshalPayloadChunk(id, int(SequenceValue), payload)
}

// SequenceDoneChunk builds the terminal wire chunk for a sequence that
// completed without error.
func SequenceDoneChunk(id ChunkID) RawChunk {
	return RawChunk{ID: id, Status: int(SequenceDone)}
}

// SequenceErrorChunk builds the terminal wire chunk for a sequence that
// failed mid-iteration.
func SequenceErrorChunk(id ChunkID, errPayload any) (RawChunk, error) {
	return marshalPayloadChunk(id, int(SequenceError), errPayload)
}

func marshalPayloadChunk(id ChunkID, status int, payload any) (RawChunk, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return RawChunk{}, fmt.Errorf("wire: marshaling chunk %d payload: %w", id, err)
	}
	return RawChunk{ID: id, Status: status, Payload: b, HasPayload: true}, nil
}
