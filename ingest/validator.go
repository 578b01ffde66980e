package ingest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

// FieldError is a single schema violation reported back to the caller.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for payloads that do not match the event schema.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid event: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json names (eventName) instead of Go field names (EventName).
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks a single-event payload against the fixed schema.
func Validate(p *models.EventPayload) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate event: %w", err)
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "max":
		return "max length " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "datetime":
		return "must be an ISO-8601 instant"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Enricher fills identifiers and the timestamp. It is a pure function of the
// payload, the correlation hints, its id generators and its clock.
type Enricher struct {
	Now          func() time.Time
	NewEventID   func() (string, error)
	NewJourneyID func() (string, error)
}

func NewEnricher() *Enricher {
	return &Enricher{
		Now:          func() time.Time { return time.Now().UTC() },
		NewEventID:   utils.NewEventID,
		NewJourneyID: utils.NewJourneyID,
	}
}

// Enrich resolves each identifier as payload value, then header hint, then a
// freshly generated value. A present but unparsable timestamp is a
// ValidationError; id generation failures are returned as-is.
func (e *Enricher) Enrich(p models.EventPayload, hints models.Correlation) (models.AnalyticsEvent, error) {
	ts := e.Now()
	if p.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return models.AnalyticsEvent{}, &ValidationError{Fields: []FieldError{
				{Field: "timestamp", Message: "must be an ISO-8601 instant"},
			}}
		}
		ts = parsed.UTC()
	}

	eventID := p.EventID
	if eventID == "" {
		id, err := e.NewEventID()
		if err != nil {
			return models.AnalyticsEvent{}, err
		}
		eventID = id
	}

	journeyID := firstNonEmpty(p.JourneyID, hints.JourneyID)
	if journeyID == "" {
		id, err := e.NewJourneyID()
		if err != nil {
			return models.AnalyticsEvent{}, err
		}
		journeyID = id
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	return models.AnalyticsEvent{
		EventID:         eventID,
		EventName:       p.EventName,
		Domain:          p.Domain,
		Entity:          p.Entity,
		Action:          p.Action,
		Timestamp:       ts,
		JourneyID:       journeyID,
		UserEcosystemID: firstNonEmpty(p.UserEcosystemID, hints.UserEcosystemID),
		TraceID:         firstNonEmpty(p.TraceID, hints.TraceID),
		SpanID:          firstNonEmpty(p.SpanID, hints.SpanID),
		Source:          p.Source,
		Metadata:        metadata,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
