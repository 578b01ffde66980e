package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandlers answer liveness and readiness probes. Neither checks
// dependencies: ingestion keeps accepting while the database or bus is down.
type HealthHandlers struct {
	Service string
	now     func() time.Time
}

func NewHealthHandlers(service string) *HealthHandlers {
	return &HealthHandlers{Service: service, now: time.Now}
}

func (h *HealthHandlers) Health(c *gin.Context) {
	h.respond(c, "healthy")
}

func (h *HealthHandlers) Ready(c *gin.Context) {
	h.respond(c, "ready")
}

func (h *HealthHandlers) respond(c *gin.Context, status string) {
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"service":   h.Service,
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
	})
}
