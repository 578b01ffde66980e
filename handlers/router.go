package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"ecosystem/analytics/config"
	"ecosystem/analytics/ingest"
	"ecosystem/analytics/middleware"
)

// RouterDeps are the collaborators the HTTP layer needs. Stats is nil when
// the warehouse is not configured, and its routes are then not registered.
type RouterDeps struct {
	Config   config.Config
	Logger   *slog.Logger
	Service  *ingest.Service
	Journeys JourneyReader
	Stats    StatsReader
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Logger(),
		middleware.Correlation(d.Logger),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			middleware.LoggerFrom(c).Error("Recovered from panic", "panic", recovered)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody(msgInternalError))
		}),
		middleware.CORS(d.Config.CORSAllowedOrigins),
	)

	health := NewHealthHandlers(d.Config.ServiceName)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)

	eventHandlers := NewEventHandlers(d.Service)
	journeyHandlers := NewJourneyHandlers(d.Journeys)

	api := r.Group("/api/analytics")
	api.Use(
		middleware.ServiceAuth(middleware.AuthConfig{
			JWTSecret:  []byte(d.Config.AuthJWTSecret),
			APIKeyHash: d.Config.APIKeyHash,
		}),
		middleware.BodyLimit(d.Config.MaxBodyBytes),
	)
	{
		api.POST("/events", eventHandlers.TrackEvent)
		api.POST("/events/batch", eventHandlers.TrackBatch)

		api.GET("/journeys/:journeyId", journeyHandlers.GetJourney)
		api.GET("/journeys/:journeyId/events", journeyHandlers.GetJourneyEvents)

		if d.Stats != nil {
			statsHandlers := NewStatsHandlers(d.Stats)
			statsGroup := api.Group("/stats")
			{
				statsGroup.GET("/event-counts", statsHandlers.GetEventCountsOverTime)
				statsGroup.GET("/unique-journeys", statsHandlers.GetUniqueJourneysOverTime)
			}
		}
	}

	return r
}
