// models/event.go
package models

import "time"

// Domain is the owning business area of an analytics event.
type Domain string

const (
	DomainUser       Domain = "user"
	DomainCreditCard Domain = "credit-card"
	DomainAnalytics  Domain = "analytics"
	DomainPlatform   Domain = "platform"
)

// MaxEventNameLen bounds eventName on the single-event path.
const MaxEventNameLen = 100

// EventPayload is the inbound wire shape. Everything except eventName and
// domain is optional; the enricher fills the identifiers.
type EventPayload struct {
	EventID         string         `json:"eventId,omitempty"`
	EventName       string         `json:"eventName" validate:"required,max=100"`
	Domain          string         `json:"domain" validate:"required,oneof=user credit-card analytics platform"`
	Entity          string         `json:"entity,omitempty"`
	Action          string         `json:"action,omitempty"`
	Timestamp       string         `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	JourneyID       string         `json:"journeyId,omitempty"`
	UserEcosystemID string         `json:"userEcosystemId,omitempty"`
	TraceID         string         `json:"traceId,omitempty"`
	SpanID          string         `json:"spanId,omitempty"`
	Source          string         `json:"source,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AnalyticsEvent is a fully enriched event as persisted and published.
type AnalyticsEvent struct {
	EventID         string         `json:"eventId"`
	EventName       string         `json:"eventName"`
	Domain          string         `json:"domain"`
	Entity          string         `json:"entity,omitempty"`
	Action          string         `json:"action,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	JourneyID       string         `json:"journeyId"`
	UserEcosystemID string         `json:"userEcosystemId,omitempty"`
	TraceID         string         `json:"traceId,omitempty"`
	SpanID          string         `json:"spanId,omitempty"`
	Source          string         `json:"source,omitempty"`
	Metadata        map[string]any `json:"metadata"`
}

// Journey aggregates all events sharing a journeyId.
type Journey struct {
	JourneyID       string    `json:"journeyId"`
	UserEcosystemID string    `json:"userEcosystemId,omitempty"`
	EventCount      int64     `json:"eventCount"`
	StartedAt       time.Time `json:"startedAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Correlation carries the per-request identifiers taken from headers and
// the W3C trace context.
type Correlation struct {
	JourneyID       string
	UserEcosystemID string
	RequestID       string
	TraceID         string
	SpanID          string
}

// BatchResult is the per-request outcome of a batch submission.
type BatchResult struct {
	Accepted int `json:"accepted"`
	Failed   int `json:"failed"`
	Total    int `json:"total"`
}

// Correlation headers shared by the service and its clients.
const (
	HeaderJourneyID       = "x-journey-id"
	HeaderUserEcosystemID = "x-user-ecosystem-id"
	HeaderRequestID       = "x-request-id"
)

// EventCountByTime is one bucket of a warehouse time series.
type EventCountByTime struct {
	Time   time.Time `json:"time"`
	Domain *string   `json:"domain,omitempty"`
	Count  uint64    `json:"count"`
}
