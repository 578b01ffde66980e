package ingest

import (
	"bytes"
	"encoding/json"
	"strconv"

	"ecosystem/analytics/models"
)

var errNotObject = &ValidationError{Fields: []FieldError{{Field: "event", Message: "must be a JSON object"}}}

// decodeBatchItem reads a batch item without type checks. Scalars of any
// JSON type become their text form, nested values in string fields become
// their JSON text, and a metadata value that is not an object is kept under
// "value". Only a non-object item is an error.
func decodeBatchItem(raw json.RawMessage) (models.EventPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return models.EventPayload{}, errNotObject
	}

	p := models.EventPayload{
		EventID:         asText(fields["eventId"]),
		EventName:       asText(fields["eventName"]),
		Domain:          asText(fields["domain"]),
		Entity:          asText(fields["entity"]),
		Action:          asText(fields["action"]),
		Timestamp:       asText(fields["timestamp"]),
		JourneyID:       asText(fields["journeyId"]),
		UserEcosystemID: asText(fields["userEcosystemId"]),
		TraceID:         asText(fields["traceId"]),
		SpanID:          asText(fields["spanId"]),
		Source:          asText(fields["source"]),
	}
	switch m := fields["metadata"].(type) {
	case nil:
	case map[string]any:
		p.Metadata = m
	default:
		p.Metadata = map[string]any{"value": m}
	}
	return p, nil
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
