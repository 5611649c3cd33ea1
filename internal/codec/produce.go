package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/jlinden/jsonlcodec/internal/metrics"
	"github.com/jlinden/jsonlcodec/internal/wire"
)

// ProduceOptions configures Produce (C7, producer half of the Codec
// Entry Points).
type ProduceOptions struct {
	// Data is the root value tree. Top-level values may themselves be
	// *Future/*Sequence, maps, slices, or plain JSON-compatible values.
	Data map[string]any

	// MaxDepth, OnError, FormatError, Serialize configure the underlying
	// Dehydrator — see DehydrateOptions.
	MaxDepth    int
	OnError     func(cause error, path wire.Path)
	FormatError func(error) any
	Serialize   func(any) any

	// Metrics, if set, receives this stream's chunk-allocation/emission
	// counts — see DehydrateOptions.Metrics.
	Metrics *metrics.Recorder
}

// Produce dehydrates opts.Data and writes the resulting head line
// followed by the chunk stream to w, one JSON value per line, flushing
// after each line when w supports it — the same "write then flush"
// rhythm as an SSE writer, generalized from one event type to the
// head/chunk framing of this protocol.
//
// Produce blocks until every leaf has settled (or the stream was
// cancelled via ctx) and the full chunk stream has been written. Callers
// that need to cancel an in-flight Produce — e.g. because the HTTP client
// disconnected — cancel ctx; pending leaves are then dropped without a
// terminal chunk, per spec.md §5.
func Produce(ctx context.Context, w io.Writer, opts ProduceOptions) error {
	d := NewDehydrator(ctx, DehydrateOptions{
		MaxDepth:    opts.MaxDepth,
		OnError:     opts.OnError,
		FormatError: opts.FormatError,
		Serialize:   opts.Serialize,
		Metrics:     opts.Metrics,
	})

	head := make(wire.Head, len(opts.Data))
	for k, v := range opts.Data {
		head[k] = d.Dehydrate(v, wire.Path{k})
	}
	d.Close()

	if err := writeLine(w, head); err != nil {
		return fmt.Errorf("jsonlcodec: writing head line: %w", err)
	}
	flush(w)

	for chunk := range d.Chunks() {
		if err := writeLine(w, chunk); err != nil {
			return fmt.Errorf("jsonlcodec: writing chunk line: %w", err)
		}
		flush(w)
	}
	d.Wait()
	return nil
}

func writeLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
