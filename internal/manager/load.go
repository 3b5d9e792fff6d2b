package manager

import (
	"context"

	"foundryctl/internal/metrics"
	"foundryctl/pkg/types"
)

// Load asks the running daemon to load the model, downloading it first when
// absent from the cache. The provider is ranked before any daemon contact,
// so an incompatible entry fails with NoCompatibleProvider without touching
// the load endpoint.
func (m *Manager) Load(ctx context.Context, nameOrAlias string) (types.CachedModel, error) {
	cli, err := m.daemonClient()
	if err != nil {
		return types.CachedModel{}, err
	}
	entry, err := m.Resolve(ctx, nameOrAlias)
	if err != nil {
		return types.CachedModel{}, err
	}
	providerUsed, err := m.selector.Best(entry.ModelID, entry.Providers)
	if err != nil {
		return types.CachedModel{}, err
	}
	rec, ok := m.cache.Get(entry.ModelID)
	if !ok {
		rec, err = m.Download(ctx, entry.ModelID)
		if err != nil {
			return types.CachedModel{}, err
		}
	}
	if err := cli.Load(ctx, types.LoadRequest{
		ModelID:   rec.ModelID,
		LocalPath: rec.LocalPath,
		Provider:  providerUsed,
	}); err != nil {
		metrics.LoadFinished("error")
		m.log.Error().Err(err).Str("model", rec.ModelID).Msg("load rejected by daemon")
		return types.CachedModel{}, types.ErrLoadFailed(rec.ModelID, err)
	}
	metrics.LoadFinished("ok")
	m.log.Info().Str("model", rec.ModelID).Str("provider", string(providerUsed)).Msg("model loaded")
	rec.ProviderUsed = providerUsed
	return rec, nil
}

// Unload asks the running daemon to unload a model by id.
func (m *Manager) Unload(ctx context.Context, modelID string) error {
	cli, err := m.daemonClient()
	if err != nil {
		return err
	}
	return cli.Unload(ctx, modelID)
}

// LoadedModels lists the model ids the daemon currently serves.
func (m *Manager) LoadedModels(ctx context.Context) ([]string, error) {
	cli, err := m.daemonClient()
	if err != nil {
		return nil, err
	}
	return cli.Loaded(ctx)
}
