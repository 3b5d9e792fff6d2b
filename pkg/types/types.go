package types

import "time"

// ProviderKind identifies an execution backend capable of running a model.
// The set is closed; adding a backend means adding a constant here plus a
// ranking entry in the provider package.
type ProviderKind string

const (
	ProviderNPU    ProviderKind = "npu"
	ProviderCUDA   ProviderKind = "cuda"
	ProviderCPU    ProviderKind = "cpu"
	ProviderWebGPU ProviderKind = "webgpu"
)

// CatalogEntry describes one model published in the catalog. Entries are
// immutable once fetched; a refresh replaces the whole set.
type CatalogEntry struct {
	// ModelID is the unique, stable identifier.
	// example: phi-3.5-mini-onnx
	ModelID string `json:"model_id" yaml:"model_id" toml:"model_id"`
	// Alias is a human-friendly name; not necessarily unique across providers.
	// example: phi-3.5-mini
	Alias string `json:"alias,omitempty" yaml:"alias,omitempty" toml:"alias,omitempty"`
	// Providers lists the execution backends this entry supports.
	Providers []ProviderKind `json:"providers" yaml:"providers" toml:"providers"`
	// SizeBytes is the transfer size; 0 means unknown.
	SizeBytes int64 `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty" toml:"size_bytes,omitempty"`
	// Format is the on-disk model format (e.g. "onnx", "gguf").
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
	// URI is the download location for the model artifact.
	URI string `json:"uri" yaml:"uri" toml:"uri"`
	// SHA256 is the hex digest of the artifact when the catalog publishes one.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty" toml:"sha256,omitempty"`
}

// CachedModel is the durable record of a model that finished downloading.
type CachedModel struct {
	ModelID      string       `json:"model_id"`
	Alias        string       `json:"alias,omitempty"`
	LocalPath    string       `json:"local_path"`
	ProviderUsed ProviderKind `json:"provider_used,omitempty"`
	SizeBytes    int64        `json:"size_bytes"`
	DownloadedAt time.Time    `json:"downloaded_at"`
}

// DownloadStatus tags a progress event.
type DownloadStatus string

const (
	DownloadProgress  DownloadStatus = "progress"
	DownloadCompleted DownloadStatus = "completed"
	DownloadError     DownloadStatus = "error"
)

// DownloadProgressEvent reports transfer progress. Within one download the
// percentage is non-decreasing and reaches 100 only on the completed event.
// ErrorMessage is set iff Status is DownloadError.
type DownloadProgressEvent struct {
	Status        DownloadStatus `json:"status"`
	ModelID       string         `json:"model_id"`
	Percentage    float64        `json:"percentage"`
	BytesReceived int64          `json:"bytes_received"`
	BytesTotal    int64          `json:"bytes_total,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// Terminal reports whether the event ends the sequence.
func (e DownloadProgressEvent) Terminal() bool {
	return e.Status == DownloadCompleted || e.Status == DownloadError
}

// ServiceState is the lifecycle state of the managed daemon.
type ServiceState string

const (
	ServiceStopped  ServiceState = "stopped"
	ServiceStarting ServiceState = "starting"
	ServiceRunning  ServiceState = "running"
	ServiceStopping ServiceState = "stopping"
	ServiceFailed   ServiceState = "failed"
)

// HealthResponse is returned by the daemon health endpoint.
type HealthResponse struct {
	// example: ok
	Status string `json:"status"`
	// Version of the daemon, when reported.
	Version string `json:"version,omitempty"`
}

// LoadRequest asks the daemon to load a cached model.
type LoadRequest struct {
	ModelID   string       `json:"model_id"`
	LocalPath string       `json:"local_path"`
	Provider  ProviderKind `json:"provider"`
}

// UnloadRequest asks the daemon to unload a model.
type UnloadRequest struct {
	ModelID string `json:"model_id"`
}

// LoadedResponse lists model ids currently loaded by the daemon.
type LoadedResponse struct {
	Models []string `json:"models"`
}

// CatalogResponse wraps the list of catalog entries.
type CatalogResponse struct {
	Models []CatalogEntry `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found
	Error string `json:"error"`
	// HTTP status code.
	// example: 404
	Code int `json:"code"`
}
