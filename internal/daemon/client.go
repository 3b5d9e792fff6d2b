// Package daemon is the typed HTTP client for the local inference daemon.
// The manager is a client only; the wire paths are the daemon's contract.
package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"foundryctl/pkg/types"
)

// Well-known daemon paths.
const (
	PathHealth = "/healthz"
	PathLoad   = "/v1/load"
	PathUnload = "/v1/unload"
	PathLoaded = "/v1/loaded"
)

// Client talks to one daemon endpoint. Health calls run under a short
// deadline; load calls may block on large transfers and run under a long
// one. The underlying http.Client carries no global timeout: every request
// gets a context deadline.
type Client struct {
	base            string
	apiKey          string
	httpClient      *http.Client
	healthTimeout   time.Duration
	transferTimeout time.Duration
}

// New returns a Client for the daemon at base (e.g. "http://127.0.0.1:5273").
// httpClient may be nil; it is shared and reused across calls.
func New(base, apiKey string, httpClient *http.Client, healthTimeout, transferTimeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	if healthTimeout <= 0 {
		healthTimeout = 2 * time.Second
	}
	if transferTimeout <= 0 {
		transferTimeout = 2 * time.Hour
	}
	return &Client{
		base:            base,
		apiKey:          apiKey,
		httpClient:      httpClient,
		healthTimeout:   healthTimeout,
		transferTimeout: transferTimeout,
	}
}

// Base returns the daemon base URL.
func (c *Client) Base() string { return c.base }

// Health probes the daemon. A nil error means reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	var out types.HealthResponse
	return c.do(ctx, http.MethodGet, PathHealth, nil, &out)
}

// Load asks the daemon to load a cached model with the selected provider.
func (c *Client) Load(ctx context.Context, req types.LoadRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.transferTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, PathLoad, req, nil)
}

// Unload asks the daemon to unload a model. Best effort on shutdown paths.
func (c *Client) Unload(ctx context.Context, modelID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, PathUnload, types.UnloadRequest{ModelID: modelID}, nil)
}

// Loaded lists the model ids the daemon currently has loaded.
func (c *Client) Loaded(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	var out types.LoadedResponse
	if err := c.do(ctx, http.MethodGet, PathLoaded, nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr types.ErrorResponse
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon %s %s: %s (%d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon %s %s: %s: %s", method, path, resp.Status, string(b))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode daemon response: %w", err)
		}
	}
	return nil
}
