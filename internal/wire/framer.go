package wire

import (
	"bufio"
	"io"
)

// LineFramer splits a byte stream into complete UTF-8 text lines, the
// same way a bufio.Scanner-based SSE reader pulls one "data: ..." line
// at a time off an HTTP response body. Unlike an SSE reader, LineFramer
// doesn't interpret content — every non-empty line is a complete JSON
// value (the head, or one chunk).
type LineFramer struct {
	scanner *bufio.Scanner
}

// NewLineFramer wraps r so callers can read one line at a time via Next.
func NewLineFramer(r io.Reader) *LineFramer {
	s := bufio.NewScanner(r)
	// Head + chunk lines can carry large dehydrated payloads; grow the
	// scanner's buffer well past bufio's 64KiB default, past which Next
	// would fail with bufio.ErrTooLong. Lines over 16MiB still fail that way.
	buf := make([]byte, 0, 64*1024)
	s.Buffer(buf, 16*1024*1024)
	return &LineFramer{scanner: s}
}

// Next returns the next complete line (without its trailing newline), or
// io.EOF once the underlying reader is exhausted. A malformed final line
// with no trailing "\n" is still returned — the framer does not require
// well-formedness, only the producer is expected to always terminate the
// last line with "\n".
func (f *LineFramer) Next() ([]byte, error) {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return f.scanner.Bytes(), nil
}
