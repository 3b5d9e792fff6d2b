package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"

	"foundryctl/internal/metrics"
	"foundryctl/pkg/types"
)

// progressBuffer bounds the event channel; the producer blocks when the
// consumer falls this far behind rather than buffering without limit.
const progressBuffer = 16

// transferChunk is the copy granularity; one progress event per chunk.
const transferChunk = 128 * 1024

// Download resolves nameOrAlias and ensures the model is in the cache.
// Already-cached models return immediately without any transfer. Concurrent
// calls for the same model id join a single in-flight transfer.
func (m *Manager) Download(ctx context.Context, nameOrAlias string) (types.CachedModel, error) {
	entry, err := m.Resolve(ctx, nameOrAlias)
	if err != nil {
		return types.CachedModel{}, err
	}
	if rec, ok := m.cache.Get(entry.ModelID); ok {
		return rec, nil
	}
	v, err, _ := m.flights.Do(entry.ModelID, func() (any, error) {
		return m.transfer(ctx, entry, nil)
	})
	if err != nil {
		return types.CachedModel{}, err
	}
	return v.(types.CachedModel), nil
}

// DownloadWithProgress behaves like Download but returns a finite, ordered
// stream of progress events ending in exactly one terminal event. The
// channel is closed after the terminal event. Cancelling ctx stops the
// transfer, removes the staging artifact, and terminates the stream with an
// error event; the cache is left untouched.
func (m *Manager) DownloadWithProgress(ctx context.Context, nameOrAlias string) (<-chan types.DownloadProgressEvent, error) {
	entry, err := m.Resolve(ctx, nameOrAlias)
	if err != nil {
		return nil, err
	}
	ch := make(chan types.DownloadProgressEvent, progressBuffer)

	if rec, ok := m.cache.Get(entry.ModelID); ok {
		ch <- types.DownloadProgressEvent{
			Status:        types.DownloadCompleted,
			ModelID:       rec.ModelID,
			Percentage:    100,
			BytesReceived: rec.SizeBytes,
			BytesTotal:    rec.SizeBytes,
		}
		close(ch)
		return ch, nil
	}

	emit := func(ev types.DownloadProgressEvent) {
		// Bounded buffer with block-on-full; cancellation unblocks.
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)
		v, err, shared := m.flights.Do(entry.ModelID, func() (any, error) {
			return m.transfer(ctx, entry, emit)
		})
		if err != nil {
			emit(types.DownloadProgressEvent{
				Status:       types.DownloadError,
				ModelID:      entry.ModelID,
				ErrorMessage: err.Error(),
			})
			return
		}
		rec := v.(types.CachedModel)
		if shared {
			m.log.Debug().Str("model", entry.ModelID).Msg("joined in-flight download")
		}
		emit(types.DownloadProgressEvent{
			Status:        types.DownloadCompleted,
			ModelID:       rec.ModelID,
			Percentage:    100,
			BytesReceived: rec.SizeBytes,
			BytesTotal:    rec.SizeBytes,
		})
	}()
	return ch, nil
}

// transfer downloads entry.URI into staging, verifies integrity, and commits
// the artifact plus its cache record. emit (optional) receives non-terminal
// progress events; terminal events are the caller's responsibility so that
// flight joiners still see exactly one.
func (m *Manager) transfer(ctx context.Context, entry types.CatalogEntry, emit func(types.DownloadProgressEvent)) (types.CachedModel, error) {
	// A flight that lost the race to an earlier one may find the model
	// already committed.
	if rec, ok := m.cache.Get(entry.ModelID); ok {
		return rec, nil
	}
	metrics.DownloadStarted()

	ctx, cancel := context.WithTimeout(ctx, m.transferTimeout)
	defer cancel()

	rec, err := m.doTransfer(ctx, entry, emit)
	if err != nil {
		m.cache.CleanStaging(entry.ModelID)
		metrics.DownloadFinished("error", 0)
		m.log.Error().Err(err).Str("model", entry.ModelID).Msg("download failed")
		return types.CachedModel{}, types.ErrDownloadFailed(entry.ModelID, err)
	}
	metrics.DownloadFinished("completed", rec.SizeBytes)
	m.log.Info().Str("model", rec.ModelID).Int64("bytes", rec.SizeBytes).Msg("download completed")
	return rec, nil
}

func (m *Manager) doTransfer(ctx context.Context, entry types.CatalogEntry, emit func(types.DownloadProgressEvent)) (types.CachedModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URI, nil)
	if err != nil {
		return types.CachedModel{}, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return types.CachedModel{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return types.CachedModel{}, fmt.Errorf("transfer http error: %s: %s", resp.Status, string(b))
	}

	total := entry.SizeBytes
	if total == 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	staging := m.cache.StagingPath(entry.ModelID)
	f, err := os.Create(staging)
	if err != nil {
		return types.CachedModel{}, err
	}

	hasher := sha256.New()
	w := io.MultiWriter(f, hasher)
	buf := make([]byte, transferChunk)
	var received int64
	for {
		if ctx.Err() != nil {
			_ = f.Close()
			return types.CachedModel{}, ctx.Err()
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				_ = f.Close()
				return types.CachedModel{}, werr
			}
			received += int64(n)
			if emit != nil {
				emit(types.DownloadProgressEvent{
					Status:        types.DownloadProgress,
					ModelID:       entry.ModelID,
					Percentage:    partialPercent(received, total),
					BytesReceived: received,
					BytesTotal:    total,
				})
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			_ = f.Close()
			if ctx.Err() != nil {
				return types.CachedModel{}, ctx.Err()
			}
			return types.CachedModel{}, rerr
		}
	}
	if err := f.Close(); err != nil {
		return types.CachedModel{}, err
	}

	// Integrity: digest when the catalog publishes one, size otherwise.
	if entry.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != entry.SHA256 {
			return types.CachedModel{}, fmt.Errorf("sha256 mismatch: got %s want %s", got, entry.SHA256)
		}
	} else if entry.SizeBytes > 0 && received != entry.SizeBytes {
		return types.CachedModel{}, fmt.Errorf("size mismatch: got %d want %d bytes", received, entry.SizeBytes)
	}

	local, err := m.cache.Commit(entry.ModelID)
	if err != nil {
		return types.CachedModel{}, err
	}
	providerUsed, _ := m.selector.Best(entry.ModelID, entry.Providers)
	rec := types.CachedModel{
		ModelID:      entry.ModelID,
		Alias:        entry.Alias,
		LocalPath:    local,
		ProviderUsed: providerUsed,
		SizeBytes:    received,
	}
	if err := m.cache.Record(rec); err != nil {
		return types.CachedModel{}, err
	}
	return rec, nil
}

// partialPercent maps received bytes to a percentage strictly below 100;
// only the terminal completed event reports 100.
func partialPercent(received, total int64) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(received) / float64(total) * 100
	if pct >= 100 {
		pct = 99.9
	}
	return pct
}
