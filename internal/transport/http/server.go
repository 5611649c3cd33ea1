// Package http is the concrete transport adapter for the streaming codec:
// a chi-routed server that runs codec.Produce over a chunked response
// body, and a Client that runs codec.Consume against the response. It is
// a demonstration vehicle, not part of the codec itself.
package http

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jlinden/jsonlcodec/internal/codec"
	"github.com/jlinden/jsonlcodec/internal/config"
	"github.com/jlinden/jsonlcodec/internal/metrics"
	"github.com/jlinden/jsonlcodec/internal/wire"
)

// DataFactory builds the root value tree for one /stream request: given
// an incoming request, decide what to dehydrate.
type DataFactory func(r *http.Request) (map[string]any, error)

// Server holds the HTTP router and the dependencies handlers need.
type Server struct {
	router  chi.Router
	cfg     *config.Config
	metrics *metrics.Recorder

	// data builds the tree each POST /stream request dehydrates and
	// streams back. main.go supplies one that mixes in the example
	// Future/Sequence sources.
	data DataFactory
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. reg is the Prometheus registerer
// backing the /metrics endpoint; pass prometheus.NewRegistry() in tests
// to keep each Server's metrics isolated.
func New(cfg *config.Config, data DataFactory, reg prometheus.Registerer) *Server {
	s := &Server{cfg: cfg, data: data, metrics: metrics.New(reg)}
	s.routes(reg)
	return s
}

// routes builds the chi router with all middleware and route definitions.
func (s *Server) routes(reg prometheus.Registerer) {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/stream", s.handleStream)

	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleStream builds this request's data tree and streams its head line
// plus chunk stream back as newline-delimited JSON. Headers must be set
// before the first write, the same constraint any streaming HTTP
// handler has to respect.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	data, err := s.data(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	err = codec.Produce(r.Context(), w, codec.ProduceOptions{
		Data:     data,
		MaxDepth: s.cfg.Codec.MaxDepth,
		OnError: func(cause error, path wire.Path) {
			log.Printf("produce error at %s: %v", path, cause)
		},
		Metrics: s.metrics,
	})
	if err != nil {
		log.Printf("produce write error: %v", err)
	}
}
