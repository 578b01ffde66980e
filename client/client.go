package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

const (
	DefaultTimeout  = 5 * time.Second
	serviceTokenTTL = 5 * time.Minute
)

// StatusError is a non-2xx answer from the analytics service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("analytics service returned %d: %s", e.Code, e.Message)
}

// Client submits events to the analytics service on behalf of an upstream
// service such as the web BFF.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	logger      *slog.Logger
	service     string
	tokenSecret []byte
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithServiceToken signs every request with a short-lived service JWT.
func WithServiceToken(secret []byte, service string) Option {
	return func(c *Client) {
		c.tokenSecret = secret
		c.service = service
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts one event and returns the id the service assigned.
func (c *Client) Send(ctx context.Context, p models.EventPayload, hints models.Correlation) (string, error) {
	var out struct {
		EventID string `json:"eventId"`
	}
	if err := c.post(ctx, "/api/analytics/events", p, hints, &out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

// SendBatch posts several events in one request.
func (c *Client) SendBatch(ctx context.Context, ps []models.EventPayload, hints models.Correlation) (models.BatchResult, error) {
	var out models.BatchResult
	body := struct {
		Events []models.EventPayload `json:"events"`
	}{Events: ps}
	if err := c.post(ctx, "/api/analytics/events/batch", body, hints, &out); err != nil {
		return models.BatchResult{}, err
	}
	return out, nil
}

// SendAsync submits in the background. Failures are logged and dropped.
func (c *Client) SendAsync(p models.EventPayload, hints models.Correlation) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		if _, err := c.Send(ctx, p, hints); err != nil {
			c.logger.Warn("Failed to send analytics event", "eventName", p.EventName, "error", err)
			return
		}
		c.logger.Debug("Analytics event sent", "eventName", p.EventName)
	}()
}

func (c *Client) post(ctx context.Context, path string, body any, hints models.Correlation, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeader(req, models.HeaderJourneyID, hints.JourneyID)
	setHeader(req, models.HeaderUserEcosystemID, hints.UserEcosystemID)
	setHeader(req, models.HeaderRequestID, hints.RequestID)

	if len(c.tokenSecret) > 0 {
		token, err := utils.GenerateServiceToken(c.tokenSecret, c.service, serviceTokenTTL)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &e)
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &StatusError{Code: resp.StatusCode, Message: e.Message}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func setHeader(req *http.Request, key, value string) {
	if value != "" {
		req.Header.Set(key, value)
	}
}
