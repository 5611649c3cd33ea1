// Package httpfuture is a demo deferred-leaf source: it resolves a
// codec.Future from a single upstream HTTP JSON call, using the same
// dependency-injected *http.Client shape as a typical chat-completion
// provider adapter, generalized to decode into an untyped
// map[string]any instead of a fixed response struct.
package httpfuture

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jlinden/jsonlcodec/internal/codec"
)

// Source fetches one JSON document over HTTP and feeds the result to a
// codec.Future. It takes an *http.Client by dependency injection so tests
// can point it at an httptest server or a go-vcr-recorded transport
// instead of a live endpoint.
type Source struct {
	url    string
	client *http.Client
}

// NewSource returns a Source that fetches url when Resolve is called.
// A nil client falls back to http.DefaultClient.
func NewSource(url string, client *http.Client) *Source {
	if client == nil {
		client = http.DefaultClient
	}
	return &Source{url: url, client: client}
}

// Resolve performs the HTTP GET and settles future with the decoded JSON
// body, or rejects it on any transport/status/decode failure. It's meant
// to be called from a goroutine — the same "fire the request, settle the
// future, return" shape as ChatCompletion, minus the translation step,
// since there's no fixed response shape to translate into.
func (s *Source) Resolve(ctx context.Context, future *codec.Future) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		future.Reject(fmt.Errorf("httpfuture: building request: %w", err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		future.Reject(fmt.Errorf("httpfuture: sending request: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody map[string]any
		json.NewDecoder(resp.Body).Decode(&errBody)
		future.Reject(fmt.Errorf("httpfuture: upstream returned status %d: %v", resp.StatusCode, errBody))
		return
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		future.Reject(fmt.Errorf("httpfuture: decoding response: %w", err))
		return
	}

	future.Resolve(body)
}

// New builds a Future already wired to a background Resolve call against
// url, ready to be dehydrated as a deferred leaf. Callers just drop the
// returned Future straight into the data tree passed to codec.Produce.
func New(ctx context.Context, url string, client *http.Client) *codec.Future {
	future := codec.NewFuture()
	source := NewSource(url, client)
	go source.Resolve(ctx, future)
	return future
}
