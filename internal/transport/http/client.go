package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jlinden/jsonlcodec/internal/codec"
)

// Client drives codec.Consume against a Server's /stream endpoint. It
// takes an *http.Client by dependency injection so tests can swap in a
// fake transport.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client pointed at baseURL (e.g.
// "http://localhost:8080").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// Stream POSTs body to /stream and returns the rehydrated tree. The
// request's response body is handed to codec.Consume, which closes it
// once its background chunk reader is done with it.
func (c *Client) Stream(ctx context.Context, body any) (map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("jsonlcodec: marshaling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/stream", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("jsonlcodec: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jsonlcodec: sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var errBody map[string]string
		json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, fmt.Errorf("jsonlcodec: server returned status %d: %s", resp.StatusCode, errBody["error"])
	}

	return codec.Consume(ctx, codec.ConsumeOptions{From: resp.Body})
}
