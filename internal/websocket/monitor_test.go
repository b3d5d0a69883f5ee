package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// evictRecorder collects evicted connections and mirrors the real cleanup
// path by unregistering them.
type evictRecorder struct {
	mu       sync.Mutex
	registry *Registry
	evicted  []*Connection
}

func (e *evictRecorder) evict(conn *Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evicted = append(e.evicted, conn)
	e.registry.UnregisterConnection(conn)
	_ = conn.Close()
}

func (e *evictRecorder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.evicted)
}

func TestMonitor_EvictsIdleConnection(t *testing.T) {
	registry := NewRegistry()
	recorder := &evictRecorder{registry: registry}

	conn := newTestConnection(t, "customer-1", types.KindCustomer)
	_ = registry.Register(conn)

	monitor := NewMonitor(registry, 50*time.Millisecond, 20*time.Millisecond, recorder.evict)
	monitor.Start(context.Background())
	defer monitor.Stop()

	// No inbound activity; the connection must be evicted within one sweep
	// of crossing the idle threshold.
	deadline := time.After(500 * time.Millisecond)
	for registry.IsOnline("customer-1") {
		select {
		case <-deadline:
			t.Fatal("Idle connection was not evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if recorder.count() != 1 {
		t.Errorf("Expected 1 eviction, got %d", recorder.count())
	}
}

func TestMonitor_ActiveConnectionSurvives(t *testing.T) {
	registry := NewRegistry()
	recorder := &evictRecorder{registry: registry}

	conn := newTestConnection(t, "customer-1", types.KindCustomer)
	_ = registry.Register(conn)

	monitor := NewMonitor(registry, 80*time.Millisecond, 20*time.Millisecond, recorder.evict)
	monitor.Start(context.Background())
	defer monitor.Stop()

	// Keep producing activity past several idle windows.
	stop := time.After(300 * time.Millisecond)
	for {
		select {
		case <-stop:
			if recorder.count() != 0 {
				t.Errorf("Active connection was evicted %d times", recorder.count())
			}
			if !registry.IsOnline("customer-1") {
				t.Error("Active connection no longer registered")
			}
			return
		case <-time.After(30 * time.Millisecond):
			conn.Touch()
		}
	}
}

func TestMonitor_StopHaltsSweep(t *testing.T) {
	registry := NewRegistry()
	recorder := &evictRecorder{registry: registry}

	conn := newTestConnection(t, "customer-1", types.KindCustomer)
	_ = registry.Register(conn)

	monitor := NewMonitor(registry, 30*time.Millisecond, 10*time.Millisecond, recorder.evict)
	monitor.Start(context.Background())
	monitor.Stop()
	monitor.Stop() // idempotent

	time.Sleep(100 * time.Millisecond)
	if recorder.count() != 0 {
		t.Error("Monitor swept after Stop")
	}
}
