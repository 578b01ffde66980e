package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	EventIDPrefix   = "evt_"
	JourneyIDPrefix = "jrn_"
	RequestIDPrefix = "req_"

	eventIDLen   = 16
	journeyIDLen = 21
	requestIDLen = 16
)

// NewEventID returns "evt_" followed by 16 random hex characters.
func NewEventID() (string, error) {
	return newPrefixedID(EventIDPrefix, eventIDLen)
}

// NewJourneyID returns "jrn_" followed by 21 random hex characters.
func NewJourneyID() (string, error) {
	return newPrefixedID(JourneyIDPrefix, journeyIDLen)
}

// NewRequestID is used when the caller did not send x-request-id. It never
// fails; a request id is only used for log correlation.
func NewRequestID() string {
	id, err := newPrefixedID(RequestIDPrefix, requestIDLen)
	if err != nil {
		return RequestIDPrefix + "unavailable"
	}
	return id
}

func newPrefixedID(prefix string, n int) (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate %s id: %w", strings.TrimSuffix(prefix, "_"), err)
	}
	hex := strings.ReplaceAll(u.String(), "-", "")
	// Drop the version and variant nibbles so every kept character is random.
	random := hex[:12] + hex[13:16] + hex[17:]
	return prefix + random[:n], nil
}
