package manager

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"foundryctl/internal/cachestore"
	"foundryctl/internal/catalog"
	"foundryctl/internal/daemon"
	"foundryctl/internal/provider"
	"foundryctl/internal/supervisor"
	"foundryctl/pkg/types"
)

// Config encapsulates the collaborators and tunables for Manager construction.
type Config struct {
	Catalog    *catalog.Client
	Cache      *cachestore.Store
	Selector   *provider.Selector
	Supervisor *supervisor.Supervisor
	// HTTPClient is shared for transfers and daemon calls. May be nil.
	HTTPClient      *http.Client
	HealthTimeout   time.Duration
	TransferTimeout time.Duration
	Logger          zerolog.Logger
}

// Manager resolves names against the catalog and drives download and load.
type Manager struct {
	catalog    *catalog.Client
	cache      *cachestore.Store
	selector   *provider.Selector
	sup        *supervisor.Supervisor
	httpClient *http.Client
	log        zerolog.Logger

	healthTimeout   time.Duration
	transferTimeout time.Duration

	// flights collapses concurrent downloads of the same model id onto a
	// single transfer.
	flights singleflight.Group
}

// New constructs a Manager. No I/O happens here.
func New(cfg Config) *Manager {
	if cfg.HTTPClient == nil {
		// Intentionally no global timeout: calls carry context deadlines.
		cfg.HTTPClient = &http.Client{Timeout: 0}
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	if cfg.TransferTimeout <= 0 {
		cfg.TransferTimeout = 2 * time.Hour
	}
	return &Manager{
		catalog:         cfg.Catalog,
		cache:           cfg.Cache,
		selector:        cfg.Selector,
		sup:             cfg.Supervisor,
		httpClient:      cfg.HTTPClient,
		log:             cfg.Logger,
		healthTimeout:   cfg.HealthTimeout,
		transferTimeout: cfg.TransferTimeout,
	}
}

// ListCatalog returns the catalog entries.
func (m *Manager) ListCatalog(ctx context.Context) ([]types.CatalogEntry, error) {
	return m.catalog.List(ctx)
}

// RefreshCatalog drops the cached catalog so the next call re-fetches.
func (m *Manager) RefreshCatalog() { m.catalog.Invalidate() }

// ListCached returns the durable records of downloaded models.
func (m *Manager) ListCached() []types.CachedModel { return m.cache.List() }

// RemoveCached evicts a downloaded model and its artifact.
func (m *Manager) RemoveCached(modelID string) error { return m.cache.Remove(modelID) }

// Resolve maps a name or alias to its catalog entry.
func (m *Manager) Resolve(ctx context.Context, nameOrAlias string) (types.CatalogEntry, error) {
	return m.catalog.Resolve(ctx, nameOrAlias, m.selector)
}

// daemonClient builds a client bound to the currently running daemon.
func (m *Manager) daemonClient() (*daemon.Client, error) {
	endpoint, err := m.sup.Endpoint()
	if err != nil {
		return nil, err
	}
	apiKey, err := m.sup.APIKey()
	if err != nil {
		return nil, err
	}
	return daemon.New(endpoint, apiKey, m.httpClient, m.healthTimeout, m.transferTimeout), nil
}
