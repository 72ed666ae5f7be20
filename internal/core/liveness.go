package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/velling/presence-server/internal/metrics"
)

// Monitor evicts connections that stop answering application-level
// heartbeats. It is a fallback for transports that do not reliably signal
// close (abrupt network loss); eviction closes the transport, which drives
// the same teardown path as any other disconnect. The transport close event
// and an eviction can race for the same connection; teardown idempotence
// makes that race harmless.
type Monitor struct {
	registry *Registry
	interval time.Duration
	timeout  time.Duration
	clock    clock.Clock
	log      *zerolog.Logger
	metrics  *metrics.Metrics
}

// NewMonitor builds a liveness monitor sweeping every interval and evicting
// connections whose last heartbeat is older than timeout. Tests pass a mock
// clock; production passes clock.New().
func NewMonitor(registry *Registry, interval, timeout time.Duration, clk clock.Clock, logger *zerolog.Logger, m *metrics.Metrics) *Monitor {
	return &Monitor{
		registry: registry,
		interval: interval,
		timeout:  timeout,
		clock:    clk,
		log:      logger,
		metrics:  m,
	}
}

// Run sweeps until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep closes every connection whose heartbeat window has expired.
func (m *Monitor) Sweep() {
	cutoff := m.clock.Now().Add(-m.timeout)

	for _, c := range m.registry.All() {
		if c.LastBeat().Before(cutoff) {
			m.metrics.Evicted()
			m.log.Info().
				Str("conn_id", c.ID).
				Str("user_id", c.Identity.UserID).
				Time("last_beat", c.LastBeat()).
				Msg("evicting unresponsive connection")
			c.CloseTransport("heartbeat timeout")
		}
	}
}
