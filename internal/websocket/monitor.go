package websocket

import (
	"context"
	"log"
	"sync"
	"time"
)

// Monitor evicts connections that have produced no inbound frames for
// longer than the idle threshold. The sweep interval must be shorter than
// the threshold (enforced at config validation) so a connection is evicted
// within at most one interval of crossing it, and a live connection is never
// evicted by check jitter.
//
// Eviction runs the exact same cleanup callback as a client-initiated
// disconnect; there is no separate timeout cleanup path.
type Monitor struct {
	registry      *Registry
	idleTimeout   time.Duration
	checkInterval time.Duration
	evict         func(*Connection)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a liveness monitor. evict is invoked for each stale
// connection and must be safe to call concurrently with the read loop's own
// disconnect handling.
func NewMonitor(registry *Registry, idleTimeout, checkInterval time.Duration, evict func(*Connection)) *Monitor {
	return &Monitor{
		registry:      registry,
		idleTimeout:   idleTimeout,
		checkInterval: checkInterval,
		evict:         evict,
		stopCh:        make(chan struct{}),
	}
}

// Start begins the periodic sweep in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sweep()
			case <-m.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep. Idempotent.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// sweep evicts every connection whose last inbound activity is older than
// the idle threshold.
func (m *Monitor) sweep() {
	now := time.Now()
	for _, conn := range m.registry.Connections() {
		idle := now.Sub(conn.LastActivity())
		if idle > m.idleTimeout {
			log.Printf("Evicting idle connection: principal=%s idle=%s", conn.PrincipalID(), idle)
			m.evict(conn)
		}
	}
}
