package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCorrelationReadsHeaders(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	var got models.Correlation
	r := gin.New()
	r.Use(Correlation(logger))
	r.GET("/", func(c *gin.Context) {
		got = CorrelationFrom(c)
		LoggerFrom(c).Info("inside handler")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderJourneyID, "jrn_from_header_123")
	req.Header.Set(HeaderUserEcosystemID, "usr_7")
	req.Header.Set(HeaderRequestID, "req_client")
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req_client", w.Header().Get(HeaderRequestID))
	assert.Equal(t, models.Correlation{
		JourneyID:       "jrn_from_header_123",
		UserEcosystemID: "usr_7",
		RequestID:       "req_client",
		TraceID:         "4bf92f3577b34da6a3ce929d0e0e4736",
		SpanID:          "00f067aa0ba902b7",
	}, got)
	assert.Contains(t, logs.String(), "journeyId=jrn_from_header_123")
	assert.Contains(t, logs.String(), "traceId=4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestCorrelationGeneratesRequestID(t *testing.T) {
	var got models.Correlation
	r := gin.New()
	r.Use(Correlation(nil))
	r.GET("/", func(c *gin.Context) {
		got = CorrelationFrom(c)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "not-a-traceparent")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.True(t, strings.HasPrefix(got.RequestID, utils.RequestIDPrefix))
	assert.Equal(t, got.RequestID, w.Header().Get(HeaderRequestID))
	assert.Empty(t, got.JourneyID)
	assert.Empty(t, got.TraceID)
}

func TestCorrelationFromWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, models.Correlation{}, CorrelationFrom(c))
	assert.NotNil(t, LoggerFrom(c))
}

func TestBodyLimit(t *testing.T) {
	var readErr error
	r := gin.New()
	r.Use(BodyLimit(8))
	r.POST("/", func(c *gin.Context) {
		_, readErr = io.ReadAll(c.Request.Body)
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))

	var mbe *http.MaxBytesError
	assert.True(t, errors.As(readErr, &mbe))
}

func TestCORSPreflightReflectsOrigin(t *testing.T) {
	r := gin.New()
	r.Use(CORS(nil))
	r.POST("/api/analytics/events", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	req := httptest.NewRequest(http.MethodOptions, "/api/analytics/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-journey-id")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSRestrictsConfiguredOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://dashboard.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func newAuthRouter(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(ServiceAuth(cfg))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, ServiceFrom(c)) })
	return r
}

func doAuth(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestServiceAuthDisabledByDefault(t *testing.T) {
	w := doAuth(newAuthRouter(AuthConfig{}), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServiceAuthAPIKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-key"), bcrypt.MinCost)
	require.NoError(t, err)
	r := newAuthRouter(AuthConfig{APIKeyHash: string(hash)})

	w := doAuth(r, map[string]string{HeaderAPIKey: "s3cret-key"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "api-key", w.Body.String())

	w = doAuth(r, map[string]string{HeaderAPIKey: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"status":"error","message":"Unauthorized"}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, doAuth(r, nil).Code)
}

func TestServiceAuthBearerToken(t *testing.T) {
	secret := []byte("shared-secret")
	r := newAuthRouter(AuthConfig{JWTSecret: secret})

	token, err := utils.GenerateServiceToken(secret, "web-bff", time.Minute)
	require.NoError(t, err)

	w := doAuth(r, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "web-bff", w.Body.String())

	forged, err := utils.GenerateServiceToken([]byte("other"), "web-bff", time.Minute)
	require.NoError(t, err)
	w = doAuth(r, map[string]string{"Authorization": "Bearer " + forged})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
