// Package remote implements an extractor.Extractor that calls an HTTP model server.
//
// The server receives the raw image as the request body of
// POST <base>/embed and answers with JSON:
//
//	{"face_detected": true, "embedding": [0.1, ...]}
//
// face_detected=false, an empty embedding or HTTP 204 mean "no usable signal".
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/hupe1980/facevault/extractor"
)

// ErrServer is wrapped by errors for non-2xx responses.
var ErrServer = errors.New("remote: model server error")

// Compile-time check.
var _ extractor.Extractor = (*Client)(nil)

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	Header     http.Header
}

// Client calls a remote embedding server.
type Client struct {
	endpoint string
	http     *http.Client
	header   http.Header
}

type response struct {
	FaceDetected *bool     `json:"face_detected"`
	Embedding    []float32 `json:"embedding"`
}

// New creates a Client for the server at baseURL.
func New(baseURL string, optFns ...func(o *Options)) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("remote: base URL is required")
	}

	opts := Options{Timeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		endpoint: strings.TrimRight(baseURL, "/") + "/embed",
		http:     hc,
		header:   opts.Header,
	}, nil
}

// Extract implements extractor.Extractor.
func (c *Client) Extract(ctx context.Context, image []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("remote: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w (status %d): %s", ErrServer, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var r response
	if err := gojson.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("remote: failed to decode response: %w", err)
	}

	if r.FaceDetected != nil && !*r.FaceDetected {
		return nil, nil
	}
	if len(r.Embedding) == 0 {
		return nil, nil
	}
	return r.Embedding, nil
}
