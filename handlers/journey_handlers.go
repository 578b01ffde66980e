package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ecosystem/analytics/middleware"
	"ecosystem/analytics/models"
	"ecosystem/analytics/store"
)

// JourneyReader is the read side of the event store.
type JourneyReader interface {
	EventsByJourney(ctx context.Context, journeyID string) ([]models.AnalyticsEvent, error)
	GetJourney(ctx context.Context, journeyID string) (*models.Journey, error)
}

type JourneyHandlers struct {
	Store JourneyReader
}

func NewJourneyHandlers(r JourneyReader) *JourneyHandlers {
	return &JourneyHandlers{Store: r}
}

// GetJourneyEvents reconstructs a journey in timestamp order.
func (h *JourneyHandlers) GetJourneyEvents(c *gin.Context) {
	journeyID := c.Param("journeyId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	events, err := h.Store.EventsByJourney(ctx, journeyID)
	if err != nil {
		middleware.LoggerFrom(c).Error("Error reading journey events", "journey", journeyID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgInternalError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"journeyId": journeyID,
		"count":     len(events),
		"events":    events,
	})
}

func (h *JourneyHandlers) GetJourney(c *gin.Context) {
	journeyID := c.Param("journeyId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	j, err := h.Store.GetJourney(ctx, journeyID)
	if err != nil {
		if errors.Is(err, store.ErrJourneyNotFound) {
			c.JSON(http.StatusNotFound, errorBody("Journey not found"))
			return
		}
		middleware.LoggerFrom(c).Error("Error reading journey", "journey", journeyID, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(msgInternalError))
		return
	}
	c.JSON(http.StatusOK, j)
}
