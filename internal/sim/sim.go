// Package sim implements a small in-memory stand-in for the inference
// daemon. It speaks the daemon's wire contract (health, catalog, file
// transfer, load/unload) so the supervisor and manager can be exercised
// end to end without a production daemon. cmd/foundrysim serves it as a
// binary; tests mount it with httptest.
package sim

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foundryctl/pkg/types"
)

// Daemon holds the simulator state.
type Daemon struct {
	apiKey string

	mu      sync.RWMutex
	catalog []types.CatalogEntry
	blobs   map[string][]byte
	loaded  map[string]types.ProviderKind
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithAPIKey requires a bearer token on mutating endpoints.
func WithAPIKey(key string) Option {
	return func(d *Daemon) { d.apiKey = key }
}

// WithModel publishes a catalog entry and, when blob is non-nil, serves its
// artifact under /v1/files/{model_id}.
func WithModel(entry types.CatalogEntry, blob []byte) Option {
	return func(d *Daemon) {
		d.catalog = append(d.catalog, entry)
		if blob != nil {
			d.blobs[entry.ModelID] = blob
		}
	}
}

// New constructs a Daemon.
func New(opts ...Option) *Daemon {
	d := &Daemon{
		blobs:  make(map[string][]byte),
		loaded: make(map[string]types.ProviderKind),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Loaded returns the ids of currently loaded models.
func (d *Daemon) Loaded() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.loaded))
	for id := range d.loaded {
		out = append(out, id)
	}
	return out
}

// LoadedProvider returns the provider a model was loaded with.
func (d *Daemon) LoadedProvider(modelID string) (types.ProviderKind, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.loaded[modelID]
	return p, ok
}

// Router builds the daemon's HTTP surface.
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.HealthResponse{Status: "ok", Version: "sim"})
	})

	r.Get("/v1/catalog", func(w http.ResponseWriter, r *http.Request) {
		d.mu.RLock()
		models := make([]types.CatalogEntry, len(d.catalog))
		copy(models, d.catalog)
		d.mu.RUnlock()
		writeJSON(w, http.StatusOK, types.CatalogResponse{Models: models})
	})

	r.Get("/v1/files/{model}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "model")
		d.mu.RLock()
		blob, ok := d.blobs[id]
		d.mu.RUnlock()
		if !ok {
			writeJSONError(w, http.StatusNotFound, "no artifact for model: "+id)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(blob)
	})

	r.Get("/v1/loaded", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.LoadedResponse{Models: d.Loaded()})
	})

	r.Post("/v1/load", func(w http.ResponseWriter, r *http.Request) {
		if !d.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		var req types.LoadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.ModelID == "" || req.LocalPath == "" {
			writeJSONError(w, http.StatusBadRequest, "model_id and local_path are required")
			return
		}
		d.mu.Lock()
		d.loaded[req.ModelID] = req.Provider
		d.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
	})

	r.Post("/v1/unload", func(w http.ResponseWriter, r *http.Request) {
		if !d.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid api key")
			return
		}
		var req types.UnloadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		d.mu.Lock()
		_, ok := d.loaded[req.ModelID]
		delete(d.loaded, req.ModelID)
		d.mu.Unlock()
		if !ok {
			writeJSONError(w, http.StatusNotFound, "model not loaded: "+req.ModelID)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "unloaded"})
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func (d *Daemon) authorized(r *http.Request) bool {
	if d.apiKey == "" {
		return true
	}
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ") == d.apiKey
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
