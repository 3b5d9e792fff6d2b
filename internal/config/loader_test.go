package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", "catalog_url: https://models.example.com/catalog.json\ndata_dir: /var/lib/foundry\nlog_level: debug\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CatalogURL != "https://models.example.com/catalog.json" {
		t.Fatalf("catalog_url: %q", cfg.CatalogURL)
	}
	if cfg.DataDir != "/var/lib/foundry" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"daemon_url":"http://127.0.0.1:9999","port_start":30000,"port_end":30010}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DaemonURL != "http://127.0.0.1:9999" || cfg.PortStart != 30000 || cfg.PortEnd != 30010 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", "daemon_bin = \"/usr/local/bin/foundryd\"\ndaemon_args = [\"--verbose\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DaemonBin != "/usr/local/bin/foundryd" || len(cfg.DaemonArgs) != 1 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "cfg.ini", "x=1")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestMergeAppliesDefaults(t *testing.T) {
	cfg, err := Merge(Config{CatalogURL: "http://c"}, Default())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if cfg.CatalogURL != "http://c" {
		t.Fatalf("explicit value overwritten: %q", cfg.CatalogURL)
	}
	if cfg.DaemonURL != "http://127.0.0.1:5273" {
		t.Fatalf("default daemon url not applied: %q", cfg.DaemonURL)
	}
	if cfg.StartTimeout != 30*time.Second || cfg.TransferTimeout != 2*time.Hour {
		t.Fatalf("default timeouts not applied: %+v", cfg)
	}
	if cfg.DataDir == "" || cfg.DataDir[0] == '~' {
		t.Fatalf("data dir not expanded: %q", cfg.DataDir)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("FOUNDRYCTL_CATALOG_URL", "http://env-catalog")
	t.Setenv("FOUNDRYCTL_LOG_LEVEL", "warn")
	cfg := FromEnv(Config{CatalogURL: "http://file", LogLevel: "info"})
	if cfg.CatalogURL != "http://env-catalog" || cfg.LogLevel != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}
