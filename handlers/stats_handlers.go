package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ecosystem/analytics/middleware"
	"ecosystem/analytics/models"
	"ecosystem/analytics/store"
)

// StatsReader serves the warehouse time series.
type StatsReader interface {
	GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, domainFilter string) ([]models.EventCountByTime, error)
	GetUniqueJourneysOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.EventCountByTime, error)
}

type StatsHandlers struct {
	Warehouse StatsReader
	now       func() time.Time
}

func NewStatsHandlers(r StatsReader) *StatsHandlers {
	return &StatsHandlers{Warehouse: r, now: time.Now}
}

func (h *StatsHandlers) GetEventCountsOverTime(c *gin.Context) {
	interval, start, end, ok := h.parseSeriesQuery(c)
	if !ok {
		return
	}
	domainFilter := c.Query("domain")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Warehouse.GetEventCountsOverTime(ctx, interval, start, end, domainFilter)
	if err != nil {
		middleware.LoggerFrom(c).Error("Error getting event counts over time", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to retrieve event statistics"))
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *StatsHandlers) GetUniqueJourneysOverTime(c *gin.Context) {
	interval, start, end, ok := h.parseSeriesQuery(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	results, err := h.Warehouse.GetUniqueJourneysOverTime(ctx, interval, start, end)
	if err != nil {
		middleware.LoggerFrom(c).Error("Error getting unique journeys over time", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("Failed to retrieve journey statistics"))
		return
	}
	c.JSON(http.StatusOK, results)
}

// parseSeriesQuery reads interval, start and end. The interval defaults to
// Day and the range to the last seven days. On failure it has already
// written the 400.
func (h *StatsHandlers) parseSeriesQuery(c *gin.Context) (interval string, start, end time.Time, ok bool) {
	interval = c.DefaultQuery("interval", "Day")
	if !store.IsValidInterval(interval) {
		c.JSON(http.StatusBadRequest, errorBody("Invalid 'interval'. Use one of Minute, Hour, Day, Week, Month, Quarter, Year"))
		return "", time.Time{}, time.Time{}, false
	}

	now := h.now().UTC()
	start = now.Add(-7 * 24 * time.Hour)
	end = now

	var err error
	if p := c.Query("start"); p != "" {
		if start, err = time.Parse(time.RFC3339, p); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("Invalid 'start' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"))
			return "", time.Time{}, time.Time{}, false
		}
	}
	if p := c.Query("end"); p != "" {
		if end, err = time.Parse(time.RFC3339, p); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("Invalid 'end' timestamp format. Use RFC3339 (e.g., 2006-01-02T15:04:05Z)"))
			return "", time.Time{}, time.Time{}, false
		}
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, errorBody("'end' must not be before 'start'"))
		return "", time.Time{}, time.Time{}, false
	}
	return interval, start, end, true
}
