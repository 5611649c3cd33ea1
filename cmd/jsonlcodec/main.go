// Package main is the entry point for the jsonlcodec demo server.
package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jlinden/jsonlcodec/internal/config"
	"github.com/jlinden/jsonlcodec/internal/examples/httpfuture"
	"github.com/jlinden/jsonlcodec/internal/examples/redisseq"
	transporthttp "github.com/jlinden/jsonlcodec/internal/transport/http"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	// data is the DataFactory every POST /stream request runs: it builds
	// a tree mixing a plain value, an HTTP-backed Future, and a
	// Redis-pub/sub-backed Sequence, so a single request exercises every
	// deferred-leaf kind the codec supports.
	data := func(r *http.Request) (map[string]any, error) {
		ctx := r.Context()
		return map[string]any{
			"greeting": "hello",
			"widget":   httpfuture.New(ctx, "https://api.example.test/widget", http.DefaultClient),
			"updates":  redisseq.New(ctx, redisClient, "updates"),
		}, nil
	}

	srv := transporthttp.New(cfg, data, prometheus.DefaultRegisterer)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	log.Printf("jsonlcodec listening on :%d", cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
