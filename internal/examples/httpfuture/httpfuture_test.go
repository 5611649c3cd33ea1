package httpfuture

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"

	"github.com/jlinden/jsonlcodec/internal/codec"
)

// TestHTTPFuture_Resolve replays a recorded fixture instead of hitting a
// live endpoint — recorder.New defaults to replaying an existing cassette,
// so this test never touches the network.
func TestHTTPFuture_Resolve(t *testing.T) {
	rec, err := recorder.New("testdata/fixtures/resolve")
	require.NoError(t, err)
	defer func() { require.NoError(t, rec.Stop()) }()

	client := &http.Client{Transport: rec}

	future := codec.NewFuture()
	source := NewSource("https://api.example.test/widget", client)
	source.Resolve(context.Background(), future)

	value, err := future.Await(context.Background())
	require.NoError(t, err)

	body, ok := value.(map[string]any)
	require.True(t, ok, "resolved value should be a decoded JSON object")
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(42), body["value"])
}

// TestHTTPFuture_RejectsOnUpstreamError exercises the transport-failure
// path: the request goes to an address nothing listens on, so client.Do
// fails — no recording needed since no upstream body is involved.
func TestHTTPFuture_RejectsOnUpstreamError(t *testing.T) {
	future := codec.NewFuture()
	source := NewSource("http://127.0.0.1:0/unreachable", nil)
	source.Resolve(context.Background(), future)

	_, err := future.Await(context.Background())
	assert.Error(t, err)
}
