package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"ecosystem/analytics/logging"
	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

const (
	HeaderJourneyID       = models.HeaderJourneyID
	HeaderUserEcosystemID = models.HeaderUserEcosystemID
	HeaderRequestID       = models.HeaderRequestID

	correlationKey = "correlation"
	loggerKey      = "logger"
)

var traceContext = propagation.TraceContext{}

// Correlation collects the journey, user and request identifiers from the
// headers plus the W3C trace context, and stores them with a correlated
// logger on the gin context. The request id is echoed back.
func Correlation(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		corr := models.Correlation{
			JourneyID:       strings.TrimSpace(c.GetHeader(HeaderJourneyID)),
			UserEcosystemID: strings.TrimSpace(c.GetHeader(HeaderUserEcosystemID)),
			RequestID:       strings.TrimSpace(c.GetHeader(HeaderRequestID)),
		}
		if corr.RequestID == "" {
			corr.RequestID = utils.NewRequestID()
		}

		ctx := traceContext.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			corr.TraceID = sc.TraceID().String()
			corr.SpanID = sc.SpanID().String()
		}
		c.Request = c.Request.WithContext(ctx)

		c.Header(HeaderRequestID, corr.RequestID)
		c.Set(correlationKey, corr)
		c.Set(loggerKey, logging.WithCorrelation(base, corr))
		c.Next()
	}
}

// CorrelationFrom returns the identifiers stored by Correlation, or zero
// values when the middleware did not run.
func CorrelationFrom(c *gin.Context) models.Correlation {
	if v, ok := c.Get(correlationKey); ok {
		if corr, ok := v.(models.Correlation); ok {
			return corr
		}
	}
	return models.Correlation{}
}

// LoggerFrom returns the request-scoped logger.
func LoggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}

// BodyLimit caps request bodies at n bytes. Reads past the limit fail with
// *http.MaxBytesError.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
