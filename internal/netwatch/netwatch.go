// Package netwatch turns periodic reachability probes into online/offline
// transitions.
package netwatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Listener receives connectivity transitions.
type Listener interface {
	NetworkOnline()
	NetworkOffline()
}

// Config controls probing. Zero fields take the defaults.
type Config struct {
	ProbeURL string
	Interval time.Duration
	Timeout  time.Duration
	// FailureThreshold is the number of consecutive failed probes before
	// the network is reported offline.
	FailureThreshold int
}

// DefaultConfig probes a captive-portal endpoint every five seconds.
func DefaultConfig() Config {
	return Config{
		ProbeURL:         "http://connectivitycheck.gstatic.com/generate_204",
		Interval:         5 * time.Second,
		Timeout:          3 * time.Second,
		FailureThreshold: 2,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProbeURL == "" {
		c.ProbeURL = d.ProbeURL
	}
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	return c
}

// Monitor probes the network and notifies a Listener on transitions. The
// network is assumed online at start, so only changes are reported.
type Monitor struct {
	cfg    Config
	client *http.Client
	log    hclog.Logger

	mu       sync.Mutex
	online   bool
	failures int
}

// New creates a monitor. A nil client uses http.DefaultClient.
func New(cfg Config, client *http.Client, log hclog.Logger) *Monitor {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Monitor{
		cfg:    cfg.withDefaults(),
		client: client,
		log:    log,
		online: true,
	}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, l Listener) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		m.observe(m.probe(ctx), l)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// observe folds one probe result into the state and reports a transition.
func (m *Monitor) observe(err error, l Listener) {
	m.mu.Lock()
	var notify func()
	if err == nil {
		m.failures = 0
		if !m.online {
			m.online = true
			notify = l.NetworkOnline
			m.log.Info("network online")
		}
	} else {
		m.failures++
		m.log.Debug("probe failed", "failures", m.failures, "error", err)
		if m.online && m.failures >= m.cfg.FailureThreshold {
			m.online = false
			notify = l.NetworkOffline
			m.log.Warn("network offline", "error", err)
		}
	}
	m.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (m *Monitor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.cfg.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}
