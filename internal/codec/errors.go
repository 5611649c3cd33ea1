package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jlinden/jsonlcodec/internal/wire"
)

// ErrStreamInterrupted is delivered to every unresolved Future and every
// unterminated Sequence when the underlying byte stream is cut or
// aborted before their terminal chunk arrived — the consumer-side
// analogue of the producer's cancelled-future.
var ErrStreamInterrupted = errors.New("jsonlcodec: stream interrupted")

// ErrNoTerminalChunk indicates a PROMISE sub-stream closed without ever
// delivering a FULFILLED/REJECTED chunk — a protocol violation by the
// producer (or transport) rather than a user error.
var ErrNoTerminalChunk = errors.New("jsonlcodec: promise sub-stream closed with no terminal chunk")

// MaxDepthError reports that a value's Path exceeded the configured
// MaxDepth during dehydration.
type MaxDepthError struct {
	Path     wire.Path
	MaxDepth int
}

func (e *MaxDepthError) Error() string {
	return fmt.Sprintf("jsonlcodec: max depth %d exceeded at %s", e.MaxDepth, e.Path)
}

// UserError wraps an error value returned by the caller's own future or
// sequence — a future rejection or a sequence iteration failure. The
// Dehydrator does not wrap errors in it: OnError and FormatError on the
// producer side receive the caller's error unchanged.
type UserError struct {
	Path  wire.Path
	Cause error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("jsonlcodec: leaf at %s rejected: %v", e.Path, e.Cause)
}

func (e *UserError) Unwrap() error { return e.Cause }

// ProtocolError reports a malformed line, an unexpected status code, or
// any other violation of the wire format observed by the consumer.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "jsonlcodec: protocol error: " + e.Detail
}

// AsyncError is the fallback error value a Future or Sequence rejects
// with when the consumer has no FormatError hook (or it returns nil) to
// turn a REJECTED/ERROR chunk's raw payload back into a Go error.
type AsyncError struct {
	Raw json.RawMessage
}

func (e *AsyncError) Error() string {
	return fmt.Sprintf("jsonlcodec: remote error: %s", string(e.Raw))
}
