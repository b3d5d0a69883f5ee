package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/lifecycle"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/internal/websocket"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Server exposes the read-only operational endpoints. It holds no business
// logic; every handler delegates to a component and serializes the result.
type Server struct {
	registry  *websocket.Registry
	index     *hub.Hub
	presence  *presence.Tracker
	lifecycle *lifecycle.Controller
	store     interfaces.Store
	startedAt time.Time
}

func NewServer(registry *websocket.Registry, index *hub.Hub, tracker *presence.Tracker, controller *lifecycle.Controller, store interfaces.Store) *Server {
	return &Server{
		registry:  registry,
		index:     index,
		presence:  tracker,
		lifecycle: controller,
		store:     store,
		startedAt: time.Now(),
	}
}

// RegisterRoutes mounts the ops endpoints on the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", s.healthCheck)
	e.GET("/api/stats", s.getStats)
	e.GET("/api/agents/online", s.getOnlineAgents)
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	Uptime    string    `json:"uptime"`
}

type statsResponse struct {
	Connections map[string]int `json:"connections"`
	Sessions    map[string]int `json:"sessions"`
	Presence    map[string]int `json:"presence"`
	Goroutines  int            `json:"goroutines"`
}

type onlineAgentsResponse struct {
	Agents []types.PresenceRecord `json:"agents"`
	Count  int                    `json:"count"`
}

// healthCheck reports overall health; 503 when the database is unreachable.
func (s *Server) healthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	code := http.StatusOK

	if err := s.store.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, healthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Database:  dbStatus,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) getStats(c echo.Context) error {
	sessions := s.index.Stats()
	for k, v := range s.lifecycle.Stats() {
		sessions[k] = v
	}

	return c.JSON(http.StatusOK, statsResponse{
		Connections: s.registry.Stats(),
		Sessions:    sessions,
		Presence:    s.presenceStats(),
		Goroutines:  runtime.NumGoroutine(),
	})
}

func (s *Server) presenceStats() map[string]int {
	records := s.presence.Records()
	stats := map[string]int{
		"total":  len(records),
		"online": 0,
		"busy":   0,
	}
	for _, r := range records {
		switch r.Status {
		case types.StatusOnline:
			stats["online"]++
		case types.StatusBusy:
			stats["busy"]++
		}
	}
	return stats
}

func (s *Server) getOnlineAgents(c echo.Context) error {
	agents := s.presence.OnlineAgents()
	records := make([]types.PresenceRecord, 0, len(agents))
	for _, id := range agents {
		if r, ok := s.presence.Get(id); ok {
			records = append(records, r)
		}
	}
	return c.JSON(http.StatusOK, onlineAgentsResponse{Agents: records, Count: len(records)})
}
