package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ecosystem/analytics/ingest"
	"ecosystem/analytics/middleware"
	"ecosystem/analytics/models"
)

const (
	msgInvalidEvent  = "Invalid event format"
	msgInvalidBatch  = "Expected { events: [...] }"
	msgInternalError = "Internal server error"
	msgBodyTooLarge  = "Request body too large"
)

type EventHandlers struct {
	Service *ingest.Service
}

func NewEventHandlers(svc *ingest.Service) *EventHandlers {
	return &EventHandlers{Service: svc}
}

// TrackEvent accepts a single event. Persistence and publishing run after
// the 202 is written and never change it.
func (h *EventHandlers) TrackEvent(c *gin.Context) {
	logger := middleware.LoggerFrom(c)

	var payload models.EventPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(msgBodyTooLarge))
			return
		}
		logger.Warn("Error binding analytics event JSON", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  "error",
			"message": msgInvalidEvent,
			"errors":  []ingest.FieldError{{Field: "body", Message: "must be a JSON object"}},
		})
		return
	}

	ev, err := h.Service.Ingest(c.Request.Context(), payload, middleware.CorrelationFrom(c), logger)
	if err != nil {
		var verr *ingest.ValidationError
		if errors.As(err, &verr) {
			logger.Warn("Rejected analytics event", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": msgInvalidEvent,
				"errors":  verr.Fields,
			})
			return
		}
		logger.Error("Error ingesting analytics event", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgInternalError))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "eventId": ev.EventID})
}

type batchRequest struct {
	Events json.RawMessage `json:"events"`
}

// TrackBatch accepts {events:[...]} and reports per-item outcomes. Partial
// failure still answers 202.
func (h *EventHandlers) TrackBatch(c *gin.Context) {
	logger := middleware.LoggerFrom(c)

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if tooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody(msgBodyTooLarge))
			return
		}
		logger.Warn("Error binding analytics batch JSON", "error", err)
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidBatch))
		return
	}

	trimmed := bytes.TrimSpace(req.Events)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidBatch))
		return
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgInvalidBatch))
		return
	}

	res := h.Service.IngestBatch(c.Request.Context(), items, middleware.CorrelationFrom(c), logger)
	c.JSON(http.StatusAccepted, gin.H{
		"status":   "accepted",
		"accepted": res.Accepted,
		"failed":   res.Failed,
		"total":    res.Total,
	})
}

func errorBody(message string) gin.H {
	return gin.H{"status": "error", "message": message}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
