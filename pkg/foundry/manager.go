// Package foundry is the public entry point of the SDK. A Manager owns one
// local inference daemon handle plus the catalog, cache, and download
// machinery behind it. Construction is side effect free; all I/O is deferred
// to explicit calls so tests can construct without a live environment.
package foundry

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"foundryctl/internal/cachestore"
	"foundryctl/internal/catalog"
	"foundryctl/internal/config"
	"foundryctl/internal/manager"
	"foundryctl/internal/provider"
	"foundryctl/internal/supervisor"
	"foundryctl/pkg/types"
)

// Manager is the facade over service lifecycle and model management.
// Each Manager is independently owned; nothing is shared across instances.
type Manager struct {
	cfg        config.Config
	log        zerolog.Logger
	host       provider.Host
	hostSet    bool
	httpClient *http.Client

	initOnce sync.Once
	initErr  error
	sup      *supervisor.Supervisor
	mm       *manager.Manager

	closeOnce sync.Once
	closeErr  error
}

// New constructs a Manager. No network, process, or filesystem work happens
// here; the data directory and collaborators are initialized lazily on the
// first operation that needs them.
func New(opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	cfg, err := config.Merge(o.cfg, config.Default())
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:        cfg,
		log:        o.log,
		host:       o.host,
		hostSet:    o.hostSet,
		httpClient: &http.Client{Timeout: 0},
	}, nil
}

// init opens the cache and wires the collaborators. Runs at most once.
func (m *Manager) init() error {
	m.initOnce.Do(func() {
		cache, err := cachestore.Open(m.cfg.DataDir)
		if err != nil {
			m.initErr = err
			return
		}
		host := m.host
		if !m.hostSet {
			host = provider.Detect()
		}
		sel := provider.NewSelector(host)
		catalogURL := m.cfg.CatalogURL
		if catalogURL == "" {
			// fall back to the daemon's own catalog endpoint
			catalogURL = m.cfg.DaemonURL + "/v1/catalog"
		}
		m.sup = supervisor.New(m.cfg, m.httpClient, m.log)
		m.mm = manager.New(manager.Config{
			Catalog:         catalog.New(catalogURL, m.httpClient, m.log),
			Cache:           cache,
			Selector:        sel,
			Supervisor:      m.sup,
			HTTPClient:      m.httpClient,
			HealthTimeout:   m.cfg.HealthTimeout,
			TransferTimeout: m.cfg.TransferTimeout,
			Logger:          m.log,
		})
	})
	return m.initErr
}

// StartService ensures the daemon is running and reachable. Idempotent.
func (m *Manager) StartService(ctx context.Context) error {
	if err := m.init(); err != nil {
		return err
	}
	return m.sup.Start(ctx)
}

// StopService shuts the daemon down. Idempotent.
func (m *Manager) StopService(ctx context.Context) error {
	if err := m.init(); err != nil {
		return err
	}
	return m.sup.Stop(ctx)
}

// ServiceState reports the daemon lifecycle state.
func (m *Manager) ServiceState() types.ServiceState {
	if err := m.init(); err != nil {
		return types.ServiceFailed
	}
	return m.sup.State()
}

// ServiceURL returns the daemon base URL. Valid only after StartService.
func (m *Manager) ServiceURL() (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	return m.sup.Endpoint()
}

// Endpoint returns the OpenAI-compatible inference endpoint for downstream
// HTTP clients. Valid only after StartService.
func (m *Manager) Endpoint() (string, error) {
	base, err := m.ServiceURL()
	if err != nil {
		return "", err
	}
	return base + "/v1", nil
}

// APIKey returns the key downstream clients should send. Valid only after
// StartService; empty when an externally started daemon was adopted.
func (m *Manager) APIKey() (string, error) {
	if err := m.init(); err != nil {
		return "", err
	}
	return m.sup.APIKey()
}

// ListCatalogModels returns the models published in the catalog.
func (m *Manager) ListCatalogModels(ctx context.Context) ([]types.CatalogEntry, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.mm.ListCatalog(ctx)
}

// RefreshCatalog drops the cached catalog; the next list re-fetches.
func (m *Manager) RefreshCatalog() {
	if err := m.init(); err != nil {
		return
	}
	m.mm.RefreshCatalog()
}

// ListCachedModels returns the durable records of downloaded models.
func (m *Manager) ListCachedModels() ([]types.CachedModel, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.mm.ListCached(), nil
}

// RemoveCachedModel evicts a downloaded model and deletes its artifact.
func (m *Manager) RemoveCachedModel(modelID string) error {
	if err := m.init(); err != nil {
		return err
	}
	return m.mm.RemoveCached(modelID)
}

// DownloadModel ensures the model is cached locally, transferring it if
// needed. Idempotent for already-cached models.
func (m *Manager) DownloadModel(ctx context.Context, nameOrAlias string) (types.CachedModel, error) {
	if err := m.init(); err != nil {
		return types.CachedModel{}, err
	}
	return m.mm.Download(ctx, nameOrAlias)
}

// DownloadModelWithProgress is DownloadModel with a progress event stream.
// The stream ends with exactly one terminal event and is then closed.
func (m *Manager) DownloadModelWithProgress(ctx context.Context, nameOrAlias string) (<-chan types.DownloadProgressEvent, error) {
	if err := m.init(); err != nil {
		return nil, err
	}
	return m.mm.DownloadWithProgress(ctx, nameOrAlias)
}

// LoadModel asks the running daemon to load the model, downloading it first
// when absent.
func (m *Manager) LoadModel(ctx context.Context, nameOrAlias string) (types.CachedModel, error) {
	if err := m.init(); err != nil {
		return types.CachedModel{}, err
	}
	return m.mm.Load(ctx, nameOrAlias)
}

// UnloadModel asks the running daemon to unload the model.
func (m *Manager) UnloadModel(ctx context.Context, modelID string) error {
	if err := m.init(); err != nil {
		return err
	}
	return m.mm.Unload(ctx, modelID)
}

// StartModel is the composite convenience: start the service if needed,
// download the model if absent, and load it.
func (m *Manager) StartModel(ctx context.Context, nameOrAlias string) (types.CachedModel, error) {
	if err := m.StartService(ctx); err != nil {
		return types.CachedModel{}, err
	}
	return m.LoadModel(ctx, nameOrAlias)
}

// Close stops the service and releases the shared HTTP client. Safe to call
// more than once; only the first call does work.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		if m.sup != nil {
			m.closeErr = m.sup.Stop(ctx)
		}
		m.httpClient.CloseIdleConnections()
	})
	return m.closeErr
}

// StartModel constructs a Manager, starts the service, and loads the model
// in one call. On failure the partially started instance is closed. Each
// call yields an independently owned Manager; there is no process-wide
// shared state.
func StartModel(ctx context.Context, nameOrAlias string, opts ...Option) (*Manager, error) {
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := m.StartModel(ctx, nameOrAlias); err != nil {
		_ = m.Close(ctx)
		return nil, err
	}
	return m, nil
}
