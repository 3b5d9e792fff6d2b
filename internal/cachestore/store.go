// Package cachestore keeps the durable record of downloaded models. The
// index is a JSON file under the data directory and survives process
// restarts; writes go through a temp file + rename so a crash never leaves a
// torn index.
package cachestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"foundryctl/internal/common/fsutil"
	"foundryctl/pkg/types"
)

const (
	indexFile   = "models.json"
	modelsDir   = "models"
	stagingDir  = "staging"
	partialsExt = ".partial"
)

// Store is the durable cache of downloaded models.
type Store struct {
	dir string

	mu      sync.RWMutex
	records map[string]types.CachedModel
}

// Open loads (or initializes) the cache under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("empty cache dir")
	}
	for _, d := range []string{dir, filepath.Join(dir, modelsDir), filepath.Join(dir, stagingDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", d, err)
		}
	}
	s := &Store{dir: dir, records: make(map[string]types.CachedModel)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

// ModelPath returns where the committed artifact for modelID lives.
func (s *Store) ModelPath(modelID string) string {
	return filepath.Join(s.dir, modelsDir, modelID)
}

// StagingPath returns the partial-download location for modelID.
func (s *Store) StagingPath(modelID string) string {
	return filepath.Join(s.dir, stagingDir, modelID+partialsExt)
}

func (s *Store) load() error {
	f, err := os.Open(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open cache index: %w", err)
	}
	defer f.Close()
	var data map[string]types.CachedModel
	if err := json.NewDecoder(f).Decode(&data); err != nil {
		return fmt.Errorf("decode cache index: %w", err)
	}
	s.records = data
	if s.records == nil {
		s.records = make(map[string]types.CachedModel)
	}
	return nil
}

func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.indexPath(), b, 0o644)
}

// List enumerates cached models in stable (model id) order.
func (s *Store) List() []types.CachedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.CachedModel, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

// Has reports whether modelID has a committed download.
func (s *Store) Has(modelID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[modelID]
	return ok
}

// Get returns the record for modelID.
func (s *Store) Get(modelID string) (types.CachedModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[modelID]
	return r, ok
}

// Record upserts the cache record for a completed, verified download.
// Idempotent: re-recording the same model overwrites its entry.
func (s *Store) Record(m types.CachedModel) error {
	if m.ModelID == "" {
		return fmt.Errorf("record: empty model id")
	}
	if m.DownloadedAt.IsZero() {
		m.DownloadedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ModelID] = m
	return s.persistLocked()
}

// Remove deletes the record and the on-disk artifact. Idempotent.
func (s *Store) Remove(modelID string) error {
	s.mu.Lock()
	r, ok := s.records[modelID]
	delete(s.records, modelID)
	var perr error
	if ok {
		perr = s.persistLocked()
	}
	s.mu.Unlock()
	if perr != nil {
		return perr
	}
	if ok && r.LocalPath != "" {
		if err := os.Remove(r.LocalPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove artifact: %w", err)
		}
	}
	return nil
}

// CleanStaging removes the partial artifact for modelID, if any.
func (s *Store) CleanStaging(modelID string) {
	_ = os.Remove(s.StagingPath(modelID))
}

// Commit moves a verified staging artifact into the models directory and
// returns its final path.
func (s *Store) Commit(modelID string) (string, error) {
	dst := s.ModelPath(modelID)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(s.StagingPath(modelID), dst); err != nil {
		return "", fmt.Errorf("commit staging: %w", err)
	}
	return dst, nil
}
