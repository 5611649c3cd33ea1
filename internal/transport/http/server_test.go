package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlinden/jsonlcodec/internal/codec"
	"github.com/jlinden/jsonlcodec/internal/config"
)

func testServer(t *testing.T, data DataFactory) *Server {
	t.Helper()
	cfg := &config.Config{Codec: config.CodecConfig{MaxDepth: 0}}
	return New(cfg, data, prometheus.NewRegistry())
}

func TestServer_HealthEndpoint(t *testing.T) {
	srv := testServer(t, func(r *http.Request) (map[string]any, error) {
		return map[string]any{}, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_StreamRoundTripsThroughClient(t *testing.T) {
	srv := testServer(t, func(r *http.Request) (map[string]any, error) {
		future := codec.NewFuture()
		future.Resolve("hello")
		return map[string]any{"greeting": future}, nil
	})

	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client := NewClient(httpSrv.URL, httpSrv.Client())
	tree, err := client.Stream(context.Background(), map[string]any{})
	require.NoError(t, err)
	greeting, ok := tree["greeting"].(*codec.Future)
	require.True(t, ok)
	v, err := greeting.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestServer_StreamRejectsBadDataFactory(t *testing.T) {
	srv := testServer(t, func(r *http.Request) (map[string]any, error) {
		return nil, assertAnError{}
	})

	req := httptest.NewRequest(http.MethodPost, "/stream", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "factory failed" }

func TestServer_MetricsEndpointExposesChunkCounters(t *testing.T) {
	srv := testServer(t, func(r *http.Request) (map[string]any, error) {
		future := codec.NewFuture()
		future.Resolve("x")
		return map[string]any{"v": future}, nil
	})

	httpSrv := httptest.NewServer(srv)
	defer httpSrv.Close()

	client := NewClient(httpSrv.URL, httpSrv.Client())
	_, err := client.Stream(context.Background(), map[string]any{})
	require.NoError(t, err)

	resp, err := httpSrv.Client().Get(httpSrv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jsonlcodec_chunks_allocated_total")
}
