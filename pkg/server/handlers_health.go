package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"coinpulse/pkg/network"
)

// HealthStatus represents the agent's health status
type HealthStatus struct {
	Status    string               `json:"status"`
	Uptime    string               `json:"uptime"`
	Timestamp time.Time            `json:"timestamp"`
	Tasks     []network.TaskStatus `json:"tasks,omitempty"`
	Recipient bool                 `json:"recipient_registered"`
	Agent     AgentInfo            `json:"agent"`
}

func (s *Server) handleRoot(c echo.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent: %s v%s\n", s.info.Name, s.info.Version)
	fmt.Fprintf(&b, "Asset: %s\n", s.info.Asset)
	fmt.Fprintf(&b, "Capabilities: %s\n", strings.Join(s.info.Capabilities, ", "))
	fmt.Fprintf(&b, "Uptime: %v\n", time.Since(s.startTime).Truncate(time.Second))
	b.WriteString("\nEndpoints:\n")
	b.WriteString("  POST /receive-chat-id        - Register the report recipient\n")
	b.WriteString("  POST /capabilities/sentiment - Run a sentiment report\n")
	b.WriteString("  GET  /health                 - Health check\n")
	b.WriteString("  GET  /status                 - Detailed status (JSON)\n")
	b.WriteString("  GET  /info                   - Agent information (JSON)\n")
	b.WriteString("  GET  /metrics                - Prometheus metrics\n")
	return c.String(http.StatusOK, b.String())
}

// handleHealth is 200 when every supervised task runs and every dependency
// probe passes.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if s.status != nil && !s.status.IsHealthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":    "degraded",
			"timestamp": time.Now(),
			"agent":     s.info.Name,
		})
	}

	for _, check := range s.checks {
		if err := check.Fn(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.Name,
				"error":        err.Error(),
				"timestamp":    time.Now(),
				"agent":        s.info.Name,
			})
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now(),
		"agent":     s.info.Name,
	})
}

func (s *Server) handleStatus(c echo.Context) error {
	st := HealthStatus{
		Status:    "operational",
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
		Timestamp: time.Now(),
		Recipient: s.recipients.Get() != "",
		Agent:     *s.info,
	}
	if s.status != nil {
		st.Tasks = s.status.Status()
		if !s.status.IsHealthy() {
			st.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, s.info)
}
