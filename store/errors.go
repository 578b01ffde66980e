package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrJourneyNotFound is returned when no journey row exists for an id.
var ErrJourneyNotFound = errors.New("journey not found")

// PersistenceError reports a failed database operation for one event.
type PersistenceError struct {
	Op      string
	EventID string
	// Code is the Postgres SQLSTATE when the driver reported one.
	Code string
	Err  error
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s event %s", e.Op, e.EventID)
	if e.Code != "" {
		msg += " (sqlstate " + e.Code + ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistenceError(op, eventID string, err error) error {
	pe := &PersistenceError{Op: op, EventID: eventID, Err: err}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		pe.Code = string(pqErr.Code)
	}
	return pe
}
