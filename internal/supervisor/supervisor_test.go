package supervisor

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"foundryctl/internal/config"
	"foundryctl/internal/sim"
	"foundryctl/pkg/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.StartTimeout = 2 * time.Second
	cfg.StopGracePeriod = 500 * time.Millisecond
	cfg.HealthInterval = 20 * time.Millisecond
	cfg.HealthTimeout = 500 * time.Millisecond
	return cfg
}

func runningDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(sim.New().Router())
	t.Cleanup(srv.Close)
	return srv
}

func TestEndpointBeforeStart(t *testing.T) {
	s := New(testConfig(), nil, zerolog.Nop())
	if s.State() != types.ServiceStopped {
		t.Fatalf("initial state: %v", s.State())
	}
	if _, err := s.Endpoint(); err == nil || !types.IsServiceNotRunning(err) {
		t.Fatalf("expected ServiceNotRunning, got %v", err)
	}
	if _, err := s.APIKey(); err == nil || !types.IsServiceNotRunning(err) {
		t.Fatalf("expected ServiceNotRunning for api key, got %v", err)
	}
}

func TestStartAdoptsReachableDaemon(t *testing.T) {
	srv := runningDaemon(t)
	cfg := testConfig()
	cfg.DaemonURL = srv.URL
	// no binary configured: start must still succeed via adoption
	cfg.DaemonBin = ""

	s := New(cfg, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if s.State() != types.ServiceRunning {
		t.Fatalf("state after start: %v", s.State())
	}
	ep, err := s.Endpoint()
	if err != nil || ep != srv.URL {
		t.Fatalf("endpoint: %q err=%v", ep, err)
	}
}

func TestStartIdempotentWhenRunning(t *testing.T) {
	srv := runningDaemon(t)
	cfg := testConfig()
	cfg.DaemonURL = srv.URL
	s := New(cfg, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	ep1, _ := s.Endpoint()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}
	ep2, _ := s.Endpoint()
	if ep1 != ep2 {
		t.Fatalf("endpoint changed across idempotent starts: %q vs %q", ep1, ep2)
	}
}

func TestStartNoDaemonNoBinary(t *testing.T) {
	srv := runningDaemon(t)
	url := srv.URL
	srv.Close() // now unreachable
	cfg := testConfig()
	cfg.DaemonURL = url
	cfg.DaemonBin = ""
	s := New(cfg, nil, zerolog.Nop())
	err := s.Start(context.Background())
	if err == nil || !types.IsServiceLaunchError(err) {
		t.Fatalf("expected ServiceLaunchError, got %v", err)
	}
	if s.State() != types.ServiceFailed {
		t.Fatalf("state after failed start: %v", s.State())
	}
}

func TestStartLaunchErrorOnMissingBinary(t *testing.T) {
	cfg := testConfig()
	cfg.DaemonURL = "http://127.0.0.1:1" // nothing listens there
	cfg.DaemonBin = "/nonexistent/foundryd-binary"
	s := New(cfg, nil, zerolog.Nop())
	err := s.Start(context.Background())
	if err == nil || !types.IsServiceLaunchError(err) {
		t.Fatalf("expected ServiceLaunchError, got %v", err)
	}
	if s.State() != types.ServiceFailed {
		t.Fatalf("state after failed launch: %v", s.State())
	}
}

func TestStartLaunchErrorOnEarlyExit(t *testing.T) {
	cfg := testConfig()
	cfg.DaemonURL = "http://127.0.0.1:1"
	// exits immediately with failure, never serving health
	cfg.DaemonBin = "false"
	s := New(cfg, nil, zerolog.Nop())
	err := s.Start(context.Background())
	if err == nil || (!types.IsServiceLaunchError(err) && !types.IsServiceStartTimeout(err)) {
		t.Fatalf("expected launch error, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	s := New(testConfig(), nil, zerolog.Nop())
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop on stopped supervisor: %v", err)
	}
	if s.State() != types.ServiceStopped {
		t.Fatalf("state: %v", s.State())
	}
}

func TestStopReleasesAdoptedHandle(t *testing.T) {
	srv := runningDaemon(t)
	cfg := testConfig()
	cfg.DaemonURL = srv.URL
	s := New(cfg, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.State() != types.ServiceStopped {
		t.Fatalf("state after stop: %v", s.State())
	}
	if _, err := s.Endpoint(); err == nil || !types.IsServiceNotRunning(err) {
		t.Fatalf("endpoint after stop should fail, got %v", err)
	}
	// the adopted daemon itself keeps running
	if err := New(cfg, nil, zerolog.Nop()).Start(context.Background()); err != nil {
		t.Fatalf("adopting again after release: %v", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	srv := runningDaemon(t)
	cfg := testConfig()
	cfg.DaemonURL = srv.URL
	s := New(cfg, nil, zerolog.Nop())
	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		if err := s.Stop(context.Background()); err != nil {
			t.Fatalf("stop %d: %v", i, err)
		}
	}
}
