// Package catalog fetches and caches the published model list and resolves
// user-supplied names or aliases to concrete entries.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"foundryctl/pkg/types"
)

const (
	fetchAttempts = 3
	fetchBackoff  = 200 * time.Millisecond
)

// Ranker orders an entry's supported providers by host preference. Used to
// break ties when one alias maps to several entries.
type Ranker interface {
	Rank(modelID string, supported []types.ProviderKind) ([]types.ProviderKind, error)
}

// Client fetches the catalog over HTTP and keeps it cached in memory until
// explicitly invalidated. Entries are immutable once fetched.
type Client struct {
	url        string
	httpClient *http.Client
	log        zerolog.Logger

	mu      sync.RWMutex
	entries []types.CatalogEntry
	fetched bool
}

// New returns a Client reading the catalog from url. httpClient may be nil.
func New(url string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, httpClient: httpClient, log: log}
}

// List returns the cached catalog, fetching it first when no cache exists.
// Transient fetch failures are retried with bounded attempts and backoff
// before surfacing ErrCatalogUnavailable.
func (c *Client) List(ctx context.Context) ([]types.CatalogEntry, error) {
	c.mu.RLock()
	if c.fetched {
		out := make([]types.CatalogEntry, len(c.entries))
		copy(out, c.entries)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	entries, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries = entries
	c.fetched = true
	c.mu.Unlock()

	out := make([]types.CatalogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Invalidate drops the cached catalog; the next List performs a fresh fetch.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.entries = nil
	c.fetched = false
	c.mu.Unlock()
}

// Resolve maps nameOrAlias to a catalog entry: exact model id match first,
// then alias. When several entries share the alias, the ranker's top
// compatible provider decides; ErrNoCompatibleProvider if none is.
func (c *Client) Resolve(ctx context.Context, nameOrAlias string, ranker Ranker) (types.CatalogEntry, error) {
	if nameOrAlias == "" {
		return types.CatalogEntry{}, types.ErrModelNotFound("(empty)")
	}
	entries, err := c.List(ctx)
	if err != nil {
		return types.CatalogEntry{}, err
	}
	for _, e := range entries {
		if e.ModelID == nameOrAlias {
			return e, nil
		}
	}
	var candidates []types.CatalogEntry
	for _, e := range entries {
		if e.Alias == nameOrAlias {
			candidates = append(candidates, e)
		}
	}
	switch len(candidates) {
	case 0:
		return types.CatalogEntry{}, types.ErrModelNotFound(nameOrAlias)
	case 1:
		return candidates[0], nil
	}
	// Ambiguous alias: rank the union of supported providers, then take the
	// first candidate (catalog order is stable) supporting the best kind.
	var union []types.ProviderKind
	seen := map[types.ProviderKind]bool{}
	for _, e := range candidates {
		for _, p := range e.Providers {
			if !seen[p] {
				seen[p] = true
				union = append(union, p)
			}
		}
	}
	ranked, err := ranker.Rank(nameOrAlias, union)
	if err != nil {
		return types.CatalogEntry{}, err
	}
	for _, best := range ranked {
		for _, e := range candidates {
			for _, p := range e.Providers {
				if p == best {
					return e, nil
				}
			}
		}
	}
	return types.CatalogEntry{}, types.ErrNoCompatibleProvider(nameOrAlias)
}

func (c *Client) fetch(ctx context.Context) ([]types.CatalogEntry, error) {
	var lastErr error
	backoff := fetchBackoff
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		entries, err := c.fetchOnce(ctx)
		if err == nil {
			c.log.Debug().Int("models", len(entries)).Str("url", c.url).Msg("catalog fetched")
			return entries, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.log.Warn().Err(err).Int("attempt", attempt).Msg("catalog fetch failed")
		if attempt < fetchAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, types.ErrCatalogUnavailable(ctx.Err())
			}
			backoff *= 2
		}
	}
	return nil, types.ErrCatalogUnavailable(lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) ([]types.CatalogEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("catalog http error: %s: %s", resp.Status, string(b))
	}
	var out types.CatalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return out.Models, nil
}
