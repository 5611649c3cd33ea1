// Package metrics exposes the Prometheus instrumentation for the codec's
// dehydration pipeline, in the same "build a *Recorder, pass it in,
// methods are safe to call even when the recorder is nil" shape the
// teacher uses for its optional dependencies (an *http.Client that falls
// back to http.DefaultClient when not supplied).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder holds the counters/gauges a Dehydrator reports to. A nil
// *Recorder is valid and every method is a no-op on it, so callers that
// don't care about metrics can simply leave DehydrateOptions.Metrics unset.
type Recorder struct {
	chunksAllocated prometheus.Counter
	chunksEmitted   *prometheus.CounterVec
	pendingChunks   prometheus.Gauge
}

// New creates a Recorder and registers its collectors with reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps tests hermetic — each test gets its own registry.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		chunksAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "jsonlcodec",
			Name:      "chunks_allocated_total",
			Help:      "Chunk-ids allocated by the dehydrator, monotonically increasing per stream.",
		}),
		chunksEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jsonlcodec",
			Name:      "chunks_emitted_total",
			Help:      "Chunks written to the outgoing stream, by leaf kind and terminal status.",
		}, []string{"kind", "status"}),
		pendingChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "jsonlcodec",
			Name:      "pending_chunks",
			Help:      "Chunk-ids currently awaiting a terminal chunk for the in-flight stream.",
		}),
	}
	reg.MustRegister(r.chunksAllocated, r.chunksEmitted, r.pendingChunks)
	return r
}

// Allocated records one new chunk-id handed out.
func (r *Recorder) Allocated() {
	if r == nil {
		return
	}
	r.chunksAllocated.Inc()
}

// Emitted records one terminal (or sequence-value) chunk written for the
// given leaf kind ("promise"/"sequence") and status
// ("fulfilled"/"rejected"/"value"/"done"/"error").
func (r *Recorder) Emitted(kind, status string) {
	if r == nil {
		return
	}
	r.chunksEmitted.WithLabelValues(kind, status).Inc()
}

// SetPending reports the current size of the dehydrator's pending set.
func (r *Recorder) SetPending(n int) {
	if r == nil {
		return
	}
	r.pendingChunks.Set(float64(n))
}
