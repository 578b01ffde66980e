package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"go/parser"
	"go/token"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecosystem/analytics/ingest"
	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

func TestSendPostsEventWithCorrelationHeaders(t *testing.T) {
	var (
		gotPath    string
		gotHeaders http.Header
		gotBody    models.EventPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"accepted","eventId":"evt_assigned"}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	id, err := c.Send(context.Background(),
		models.EventPayload{EventName: "logged_in", Domain: "user"},
		models.Correlation{JourneyID: "jrn_1", UserEcosystemID: "usr_1", RequestID: "req_1"})
	require.NoError(t, err)

	assert.Equal(t, "evt_assigned", id)
	assert.Equal(t, "/api/analytics/events", gotPath)
	assert.Equal(t, "jrn_1", gotHeaders.Get("x-journey-id"))
	assert.Equal(t, "usr_1", gotHeaders.Get("x-user-ecosystem-id"))
	assert.Equal(t, "req_1", gotHeaders.Get("x-request-id"))
	assert.Empty(t, gotHeaders.Get("Authorization"))
	assert.Equal(t, "logged_in", gotBody.EventName)
}

func TestSendReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"error","message":"Invalid event format","errors":[]}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Send(context.Background(), models.EventPayload{}, models.Correlation{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.Equal(t, "Invalid event format", se.Message)
}

func TestSendBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/events/batch", r.URL.Path)
		var body struct {
			Events []json.RawMessage `json:"events"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "accepted", "accepted": len(body.Events), "failed": 0, "total": len(body.Events),
		})
	}))
	defer srv.Close()

	res, err := New(srv.URL).SendBatch(context.Background(), []models.EventPayload{
		{EventName: "a", Domain: "user"},
		{EventName: "b", Domain: "user"},
	}, models.Correlation{})
	require.NoError(t, err)
	assert.Equal(t, models.BatchResult{Accepted: 2, Total: 2}, res)
}

func TestSendSignsServiceToken(t *testing.T) {
	secret := []byte("shared-secret")
	var service string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := utils.ValidateServiceToken(secret, token)
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		service = claims.Service
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"status":"accepted","eventId":"evt_x"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithServiceToken(secret, "web-bff"))
	_, err := c.Send(context.Background(), models.EventPayload{EventName: "a", Domain: "user"}, models.Correlation{})
	require.NoError(t, err)
	assert.Equal(t, "web-bff", service)
}

func TestSendHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Send(context.Background(), models.EventPayload{EventName: "a", Domain: "user"}, models.Correlation{})
	assert.Error(t, err)
}

func TestSendAsyncDelivers(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.EventPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p.EventName
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	New(srv.URL).SendAsync(models.EventPayload{EventName: "navigation", Domain: "platform"}, models.Correlation{})

	select {
	case name := <-got:
		assert.Equal(t, "navigation", name)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

type captureSender struct {
	mu   sync.Mutex
	sent []models.EventPayload
}

func (s *captureSender) SendAsync(p models.EventPayload, hints models.Correlation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
}

func TestEmitterEvents(t *testing.T) {
	sink := &captureSender{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Emitter{
		client: sink,
		logger: slog.New(slog.DiscardHandler),
		source: SourceWebBFF,
		now:    func() time.Time { return fixed },
		newID:  utils.NewEventID,
	}
	hints := models.Correlation{JourneyID: "jrn_bff", UserEcosystemID: "usr_bff"}

	e.LoggedIn(hints)
	e.LoggedOut(hints)
	e.OfferViewed(hints, map[string]any{"offerId": "gold"})
	e.OnboardingSigned(hints, nil)
	e.PurchaseSimulated(hints, map[string]any{"amount": 120})
	e.LimitRaised(hints, nil)
	e.AccountReset(hints)
	e.Navigation(hints, "/offers", "/onboarding")

	require.Len(t, sink.sent, 8)
	want := []struct{ name, domain, entity, action string }{
		{"logged_in", "user", "session", "created"},
		{"logged_out", "user", "session", "ended"},
		{"offer_viewed", "credit-card", "offer", "viewed"},
		{"onboarding_signed", "credit-card", "onboarding", "signed"},
		{"purchase_simulated", "credit-card", "purchase", "simulated"},
		{"limit_raised", "credit-card", "limit", "raised"},
		{"account_reset", "credit-card", "account", "reset"},
		{"navigation", "platform", "navigation", "navigated"},
	}
	for i, w := range want {
		p := sink.sent[i]
		assert.Equal(t, w.name, p.EventName)
		assert.Equal(t, w.domain, p.Domain)
		assert.Equal(t, w.entity, p.Entity)
		assert.Equal(t, w.action, p.Action)
		assert.Equal(t, SourceWebBFF, p.Source)
		assert.Equal(t, "jrn_bff", p.JourneyID)
		assert.Equal(t, "usr_bff", p.UserEcosystemID)
		assert.True(t, strings.HasPrefix(p.EventID, utils.EventIDPrefix))
		assert.Equal(t, "2026-03-01T12:00:00Z", p.Timestamp)
		assert.NotNil(t, p.Metadata)
		assert.NoError(t, ingest.Validate(&p), w.name)
	}
	assert.Equal(t, map[string]any{"from": "/offers", "to": "/onboarding"}, sink.sent[7].Metadata)
}

func TestEmitterLogsIDFailureAndLeavesIDToService(t *testing.T) {
	sink := &captureSender{}
	var logs bytes.Buffer
	e := &Emitter{
		client: sink,
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		source: SourceWebBFF,
		now:    time.Now,
		newID:  func() (string, error) { return "", errors.New("entropy exhausted") },
	}

	e.LoggedIn(models.Correlation{})

	require.Len(t, sink.sent, 1)
	assert.Empty(t, sink.sent[0].EventID)
	assert.Equal(t, "logged_in", sink.sent[0].EventName)
	assert.Contains(t, logs.String(), "entropy exhausted")
	assert.Contains(t, logs.String(), "level=DEBUG")
}

// The client is linked into upstream services and must not drag in the
// HTTP server stack.
func TestClientImportsStayLight(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)

	fset := token.NewFileSet()
	for _, name := range files {
		if strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			for _, banned := range []string{
				"ecosystem/analytics/ingest",
				"ecosystem/analytics/middleware",
				"ecosystem/analytics/handlers",
				"github.com/gin-gonic/gin",
			} {
				assert.NotEqual(t, banned, path, "%s imports %s", name, path)
			}
		}
	}
}
