package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jlinden/jsonlcodec/internal/wire"
)

// ConsumeOptions configures Consume (C7, consumer half).
type ConsumeOptions struct {
	// From is the line-delimited JSON stream to read: the head line
	// followed by zero or more chunk lines.
	From io.Reader

	// Deserialize, OnError, FormatError configure the underlying
	// Rehydrator — see RehydrateOptions.
	Deserialize func(any) any
	OnError     func(error)
	FormatError func(json.RawMessage) error
}

// Consume decodes the head line from opts.From, materializes every
// deferred leaf it describes, and returns the reconstructed tree
// immediately — before any chunk has necessarily arrived, mirroring
// spec.md §4.7's "synchronously returns the rehydrated root". A
// background goroutine then reads the remaining lines and dispatches them
// to the right leaf via a Demuxer until From is exhausted or fails to
// read. That goroutine does not watch ctx; ctx governs only the leaves'
// drivers (see NewRehydrator).
//
// Consume returns an error only if the head line itself cannot be read or
// decoded; per-leaf failures surface through the returned tree's
// Futures/Sequences instead.
func Consume(ctx context.Context, opts ConsumeOptions) (map[string]any, error) {
	framer := wire.NewLineFramer(opts.From)

	headLine, err := framer.Next()
	if err != nil {
		return nil, fmt.Errorf("jsonlcodec: reading head line: %w", err)
	}
	var head wire.Head
	if err := json.Unmarshal(headLine, &head); err != nil {
		return nil, fmt.Errorf("jsonlcodec: decoding head line: %w", err)
	}

	demux := NewDemuxer()
	r := NewRehydrator(ctx, demux, RehydrateOptions{
		Deserialize: opts.Deserialize,
		OnError:     opts.OnError,
		FormatError: opts.FormatError,
	})
	tree := r.RehydrateHead(head)

	go pumpChunks(framer, demux, opts.From, opts.OnError)

	return tree, nil
}

// pumpChunks drains framer until it's exhausted, dispatching each decoded
// chunk to demux. If src also satisfies io.Closer (an *http.Response.Body,
// a net.Conn), it's closed once the loop exits — the background reader is
// the only thing that knows when the underlying connection is truly done
// with, so it owns the close.
func pumpChunks(framer *wire.LineFramer, demux *Demuxer, src io.Reader, onError func(error)) {
	defer demux.Abort()
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}
	for {
		line, err := framer.Next()
		if err != nil {
			if err != io.EOF && onError != nil {
				onError(fmt.Errorf("jsonlcodec: reading chunk line: %w", err))
			}
			return
		}
		var chunk wire.RawChunk
		if jerr := json.Unmarshal(line, &chunk); jerr != nil {
			if onError != nil {
				onError(&ProtocolError{Detail: "decoding chunk line: " + jerr.Error()})
			}
			continue
		}
		demux.Dispatch(chunk)
	}
}
