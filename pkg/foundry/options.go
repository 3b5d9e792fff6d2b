package foundry

import (
	"github.com/rs/zerolog"

	"foundryctl/internal/config"
	"foundryctl/internal/provider"
)

type options struct {
	cfg     config.Config
	log     zerolog.Logger
	host    provider.Host
	hostSet bool
}

func defaultOptions() options {
	return options{
		cfg: config.FromEnv(config.Config{}),
		log: zerolog.Nop(),
	}
}

// Option customizes Manager construction.
type Option func(*options)

// WithConfig replaces the base configuration. Unset fields still fall back
// to defaults; environment overrides are not applied on top.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithCatalogURL overrides the catalog source.
func WithCatalogURL(url string) Option {
	return func(o *options) { o.cfg.CatalogURL = url }
}

// WithDataDir overrides where models and the cache index are stored.
func WithDataDir(dir string) Option {
	return func(o *options) { o.cfg.DataDir = dir }
}

// WithDaemonURL overrides the endpoint probed for an already running daemon.
func WithDaemonURL(url string) Option {
	return func(o *options) { o.cfg.DaemonURL = url }
}

// WithDaemonBin overrides the daemon binary launched when none is reachable.
func WithDaemonBin(bin string, args ...string) Option {
	return func(o *options) {
		o.cfg.DaemonBin = bin
		o.cfg.DaemonArgs = args
	}
}

// WithHost pins the execution capabilities instead of detecting them.
func WithHost(host provider.Host) Option {
	return func(o *options) {
		o.host = host
		o.hostSet = true
	}
}
