package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"foundryctl/internal/common/fsutil"
)

// Config holds runtime parameters for the manager and CLI.
// Zero values mean "unspecified" and are replaced by Default values.
type Config struct {
	// CatalogURL is the HTTP source of the model catalog.
	CatalogURL string `json:"catalog_url" yaml:"catalog_url" toml:"catalog_url"`
	// DataDir is where downloaded models and the cache index live.
	DataDir string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	// DaemonBin is the inference daemon binary launched when no daemon is reachable.
	DaemonBin string `json:"daemon_bin" yaml:"daemon_bin" toml:"daemon_bin"`
	// DaemonArgs are extra arguments passed to the daemon binary.
	DaemonArgs []string `json:"daemon_args" yaml:"daemon_args" toml:"daemon_args"`
	// DaemonURL is the endpoint probed for an already running daemon.
	DaemonURL string `json:"daemon_url" yaml:"daemon_url" toml:"daemon_url"`
	// Host is the interface the daemon binds when launched by the supervisor.
	Host string `json:"host" yaml:"host" toml:"host"`
	// PortStart/PortEnd restrict the port picked for a launched daemon (0 = any free port).
	PortStart int `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd   int `json:"port_end" yaml:"port_end" toml:"port_end"`

	StartTimeout    time.Duration `json:"start_timeout" yaml:"start_timeout" toml:"start_timeout"`
	StopGracePeriod time.Duration `json:"stop_grace_period" yaml:"stop_grace_period" toml:"stop_grace_period"`
	HealthInterval  time.Duration `json:"health_interval" yaml:"health_interval" toml:"health_interval"`
	// HealthTimeout bounds individual health/status calls (short).
	HealthTimeout time.Duration `json:"health_timeout" yaml:"health_timeout" toml:"health_timeout"`
	// TransferTimeout bounds download/load calls that may block on large transfers (long).
	TransferTimeout time.Duration `json:"transfer_timeout" yaml:"transfer_timeout" toml:"transfer_timeout"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		DaemonURL:       "http://127.0.0.1:5273",
		Host:            "127.0.0.1",
		DataDir:         "~/.foundryctl",
		StartTimeout:    30 * time.Second,
		StopGracePeriod: 5 * time.Second,
		HealthInterval:  100 * time.Millisecond,
		HealthTimeout:   2 * time.Second,
		TransferTimeout: 2 * time.Hour,
		LogLevel:        "info",
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Merge fills unset fields of cfg from fallback and normalizes paths.
func Merge(cfg, fallback Config) (Config, error) {
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = fallback.CatalogURL
	}
	if cfg.DataDir == "" {
		cfg.DataDir = fallback.DataDir
	}
	if cfg.DaemonBin == "" {
		cfg.DaemonBin = fallback.DaemonBin
	}
	if len(cfg.DaemonArgs) == 0 {
		cfg.DaemonArgs = fallback.DaemonArgs
	}
	if cfg.DaemonURL == "" {
		cfg.DaemonURL = fallback.DaemonURL
	}
	if cfg.Host == "" {
		cfg.Host = fallback.Host
	}
	if cfg.PortStart == 0 {
		cfg.PortStart = fallback.PortStart
	}
	if cfg.PortEnd == 0 {
		cfg.PortEnd = fallback.PortEnd
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = fallback.StartTimeout
	}
	if cfg.StopGracePeriod == 0 {
		cfg.StopGracePeriod = fallback.StopGracePeriod
	}
	if cfg.HealthInterval == 0 {
		cfg.HealthInterval = fallback.HealthInterval
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = fallback.HealthTimeout
	}
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = fallback.TransferTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = fallback.LogLevel
	}
	dir, err := fsutil.ExpandHome(cfg.DataDir)
	if err != nil {
		return cfg, fmt.Errorf("data dir: %w", err)
	}
	cfg.DataDir = dir
	return cfg, nil
}

// FromEnv applies FOUNDRYCTL_* environment overrides on top of cfg.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("FOUNDRYCTL_CATALOG_URL"); v != "" {
		cfg.CatalogURL = v
	}
	if v := os.Getenv("FOUNDRYCTL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FOUNDRYCTL_DAEMON_BIN"); v != "" {
		cfg.DaemonBin = v
	}
	if v := os.Getenv("FOUNDRYCTL_DAEMON_URL"); v != "" {
		cfg.DaemonURL = v
	}
	if v := os.Getenv("FOUNDRYCTL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	return cfg
}
