// Package supervisor owns the local inference daemon lifecycle: adopt an
// already running daemon or launch one, wait for health, and shut it down
// cleanly. Exactly one logical service handle exists per Supervisor.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"foundryctl/internal/config"
	"foundryctl/internal/daemon"
	"foundryctl/internal/metrics"
	"foundryctl/pkg/types"
)

// Supervisor drives the Stopped -> Starting -> Running -> Stopping -> Stopped
// state machine, with Starting/Running -> Failed on irrecoverable error.
type Supervisor struct {
	cfg        config.Config
	log        zerolog.Logger
	httpClient *http.Client

	mu       sync.Mutex
	state    types.ServiceState
	endpoint string
	apiKey   string
	launched bool
	cmd      *exec.Cmd
	waitErr  chan error
	stderr   *bytes.Buffer
}

// New constructs a Supervisor. No probing or process work happens here.
// httpClient is shared with the rest of the manager and may be nil.
func New(cfg config.Config, httpClient *http.Client, log zerolog.Logger) *Supervisor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 0}
	}
	return &Supervisor{
		cfg:        cfg,
		log:        log,
		httpClient: httpClient,
		state:      types.ServiceStopped,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() types.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Endpoint returns the daemon base URL. Valid only when Running.
func (s *Supervisor) Endpoint() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.ServiceRunning {
		return "", types.ErrServiceNotRunning("endpoint")
	}
	return s.endpoint, nil
}

// APIKey returns the per-session key for the daemon. Valid only when Running;
// empty when the daemon was adopted rather than launched.
func (s *Supervisor) APIKey() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.ServiceRunning {
		return "", types.ErrServiceNotRunning("api key")
	}
	return s.apiKey, nil
}

// Start ensures a healthy daemon is reachable. Idempotent when Running.
// An already reachable daemon at the configured URL is adopted without
// launching a process; otherwise the configured binary is spawned and its
// health endpoint polled until ready or the startup deadline passes.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case types.ServiceRunning:
		s.mu.Unlock()
		return nil
	case types.ServiceStarting, types.ServiceStopping:
		s.mu.Unlock()
		return fmt.Errorf("service is %s; concurrent lifecycle calls are not supported", s.state)
	}
	s.state = types.ServiceStarting
	s.mu.Unlock()

	began := time.Now()

	// Adopt an existing daemon when one is already listening.
	if s.cfg.DaemonURL != "" && s.isHealthy(ctx, s.cfg.DaemonURL) {
		s.mu.Lock()
		s.endpoint = s.cfg.DaemonURL
		s.apiKey = ""
		s.launched = false
		s.state = types.ServiceRunning
		s.mu.Unlock()
		metrics.ServiceStarted(time.Since(began))
		s.log.Info().Str("endpoint", s.cfg.DaemonURL).Msg("adopted running daemon")
		return nil
	}

	if s.cfg.DaemonBin == "" {
		err := types.ErrServiceLaunch("no reachable daemon and no daemon binary configured", nil)
		s.fail()
		return err
	}

	endpoint, err := s.launch(ctx)
	if err != nil {
		s.fail()
		return err
	}
	s.mu.Lock()
	s.endpoint = endpoint
	s.state = types.ServiceRunning
	s.mu.Unlock()
	metrics.ServiceStarted(time.Since(began))
	s.log.Info().Str("endpoint", endpoint).Msg("daemon ready")
	return nil
}

func (s *Supervisor) fail() {
	s.mu.Lock()
	s.state = types.ServiceFailed
	s.mu.Unlock()
}

func (s *Supervisor) launch(ctx context.Context) (string, error) {
	host := s.cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	var port int
	var err error
	if s.cfg.PortStart > 0 && s.cfg.PortEnd >= s.cfg.PortStart {
		port, err = pickPortInRange(host, s.cfg.PortStart, s.cfg.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return "", types.ErrServiceLaunch("no free port", err)
	}
	endpoint := fmt.Sprintf("http://%s:%d", host, port)
	apiKey := uuid.NewString()

	args := []string{"--addr", fmt.Sprintf("%s:%d", host, port), "--api-key", apiKey}
	args = append(args, s.cfg.DaemonArgs...)
	cmd := exec.Command(s.cfg.DaemonBin, args...)
	// Keep a bounded stderr tail for diagnostics on failure.
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return "", types.ErrServiceLaunch("start "+s.cfg.DaemonBin, err)
	}
	s.log.Info().Int("pid", cmd.Process.Pid).Str("endpoint", endpoint).Msg("daemon launched")

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	s.mu.Lock()
	s.cmd = cmd
	s.waitErr = waitErr
	s.stderr = &stderr
	s.apiKey = apiKey
	s.launched = true
	s.mu.Unlock()

	startTimeout := s.cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	interval := s.cfg.HealthInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(startTimeout)
	for {
		if time.Now().After(deadline) {
			s.terminate(cmd, waitErr)
			s.log.Error().Str("endpoint", endpoint).Msg("daemon not healthy before deadline")
			return "", types.ErrServiceStartTimeout(endpoint)
		}
		select {
		case werr := <-waitErr:
			tail := stderr.String()
			if len(tail) > 4096 {
				tail = tail[len(tail)-4096:]
			}
			if werr != nil {
				return "", types.ErrServiceLaunch("daemon exited early; stderr tail: "+tail, werr)
			}
			return "", types.ErrServiceLaunch("daemon exited before becoming healthy; stderr tail: "+tail, nil)
		case <-ctx.Done():
			s.terminate(cmd, waitErr)
			return "", types.ErrServiceLaunch("startup canceled", ctx.Err())
		default:
		}
		if s.isHealthy(ctx, endpoint) {
			return endpoint, nil
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			s.terminate(cmd, waitErr)
			return "", types.ErrServiceLaunch("startup canceled", ctx.Err())
		}
	}
}

// Stop shuts the daemon down: graceful signal first, force kill after the
// grace period. Idempotent when already Stopped. Adopted daemons are not
// terminated; the handle is simply released.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == types.ServiceStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = types.ServiceStopping
	cmd := s.cmd
	waitErr := s.waitErr
	launched := s.launched
	s.mu.Unlock()

	if launched && cmd != nil && cmd.Process != nil {
		s.terminate(cmd, waitErr)
		s.log.Info().Int("pid", cmd.Process.Pid).Msg("daemon stopped")
	}

	s.mu.Lock()
	s.state = types.ServiceStopped
	s.endpoint = ""
	s.apiKey = ""
	s.cmd = nil
	s.waitErr = nil
	s.launched = false
	s.mu.Unlock()
	return nil
}

// terminate sends SIGTERM and falls back to SIGKILL after the grace period.
func (s *Supervisor) terminate(cmd *exec.Cmd, waitErr chan error) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	grace := s.cfg.StopGracePeriod
	if grace <= 0 {
		grace = 5 * time.Second
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	if waitErr == nil {
		done := make(chan struct{})
		go func() {
			_, _ = cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(grace):
			_ = cmd.Process.Kill()
		}
		return
	}
	select {
	case <-waitErr:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-waitErr
	}
}

// isHealthy probes the daemon health endpoint with the short timeout.
func (s *Supervisor) isHealthy(ctx context.Context, base string) bool {
	timeout := s.cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+daemon.PathHealth, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.HealthProbe("fail")
		return false
	}
	defer resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if ok {
		metrics.HealthProbe("ok")
	} else {
		metrics.HealthProbe("fail")
	}
	return ok
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	return strconv.Atoi(addr[lastColon+1:])
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}
