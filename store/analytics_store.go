package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ecosystem/analytics/models"
)

// dialect holds the statements that differ between Postgres and SQLite.
// Both sides take the same arguments in the same order.
type dialect struct {
	name            string
	insertEvent     string
	upsertJourney   string
	selectByJourney string
	selectJourney   string
	timeArg         func(time.Time) any
}

const eventColumns = `event_id, event_name, domain, entity, action,
	timestamp, journey_id, user_ecosystem_id,
	trace_id, span_id, source, metadata`

var postgresDialect = dialect{
	name: "postgres",
	insertEvent: `
		INSERT INTO analytics_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb)
		ON CONFLICT (event_id) DO NOTHING`,
	upsertJourney: `
		INSERT INTO journeys (journey_id, user_ecosystem_id, started_at, updated_at, event_count)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (journey_id) DO UPDATE
		SET event_count = journeys.event_count + 1,
		    updated_at = EXCLUDED.updated_at,
		    user_ecosystem_id = COALESCE(journeys.user_ecosystem_id, EXCLUDED.user_ecosystem_id)`,
	selectByJourney: `
		SELECT ` + eventColumns + `
		FROM analytics_events
		WHERE journey_id = $1
		ORDER BY timestamp ASC, id ASC`,
	selectJourney: `
		SELECT journey_id, user_ecosystem_id, event_count, started_at, updated_at
		FROM journeys
		WHERE journey_id = $1`,
	timeArg: func(t time.Time) any { return t.UTC() },
}

// sqliteTimeLayout is fixed width so lexical order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteDialect = dialect{
	name: "sqlite",
	insertEvent: `
		INSERT INTO analytics_events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING`,
	upsertJourney: `
		INSERT INTO journeys (journey_id, user_ecosystem_id, started_at, updated_at, event_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT (journey_id) DO UPDATE
		SET event_count = journeys.event_count + 1,
		    updated_at = excluded.updated_at,
		    user_ecosystem_id = COALESCE(journeys.user_ecosystem_id, excluded.user_ecosystem_id)`,
	selectByJourney: `
		SELECT ` + eventColumns + `
		FROM analytics_events
		WHERE journey_id = ?
		ORDER BY timestamp ASC, id ASC`,
	selectJourney: `
		SELECT journey_id, user_ecosystem_id, event_count, started_at, updated_at
		FROM journeys
		WHERE journey_id = ?`,
	timeArg: func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
}

// AnalyticsStore persists events and maintains the per-journey counter.
type AnalyticsStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

func NewPostgresAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db, dialect: postgresDialect, now: time.Now}
}

func NewSQLiteAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db, dialect: sqliteDialect, now: time.Now}
}

// SaveEvent inserts the event unless its id already exists, and bumps the
// journey counter only when a row was actually inserted. Both statements
// share one transaction, so a duplicate never inflates eventCount and a
// crash never leaves an event without its journey update.
func (s *AnalyticsStore) SaveEvent(ctx context.Context, ev models.AnalyticsEvent) error {
	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return persistenceError("encode metadata for", ev.EventID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError("begin tx for", ev.EventID, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.dialect.insertEvent,
		ev.EventID,
		ev.EventName,
		ev.Domain,
		nullable(ev.Entity),
		nullable(ev.Action),
		s.dialect.timeArg(ev.Timestamp),
		ev.JourneyID,
		nullable(ev.UserEcosystemID),
		nullable(ev.TraceID),
		nullable(ev.SpanID),
		nullable(ev.Source),
		string(metaJSON),
	)
	if err != nil {
		return persistenceError("insert", ev.EventID, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return persistenceError("count rows for", ev.EventID, err)
	}

	if inserted > 0 {
		now := s.dialect.timeArg(s.now())
		if _, err := tx.ExecContext(ctx, s.dialect.upsertJourney,
			ev.JourneyID, nullable(ev.UserEcosystemID), now, now,
		); err != nil {
			return persistenceError("upsert journey for", ev.EventID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError("commit", ev.EventID, err)
	}
	return nil
}

// EventsByJourney returns the journey's events in ascending timestamp order.
func (s *AnalyticsStore) EventsByJourney(ctx context.Context, journeyID string) ([]models.AnalyticsEvent, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.selectByJourney, journeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events for journey %s: %w", journeyID, err)
	}
	defer rows.Close()

	events := []models.AnalyticsEvent{}
	for rows.Next() {
		var (
			ev                                                  models.AnalyticsEvent
			entity, action, userID, traceID, spanID, sourceName sql.NullString
		)
		if err := rows.Scan(
			&ev.EventID,
			&ev.EventName,
			&ev.Domain,
			&entity,
			&action,
			timeValue{&ev.Timestamp},
			&ev.JourneyID,
			&userID,
			&traceID,
			&spanID,
			&sourceName,
			jsonValue{&ev.Metadata},
		); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Entity = entity.String
		ev.Action = action.String
		ev.UserEcosystemID = userID.String
		ev.TraceID = traceID.String
		ev.SpanID = spanID.String
		ev.Source = sourceName.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

// GetJourney returns the journey aggregate or ErrJourneyNotFound.
func (s *AnalyticsStore) GetJourney(ctx context.Context, journeyID string) (*models.Journey, error) {
	var (
		j      models.Journey
		userID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectJourney, journeyID).Scan(
		&j.JourneyID,
		&userID,
		&j.EventCount,
		timeValue{&j.StartedAt},
		timeValue{&j.UpdatedAt},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJourneyNotFound
		}
		return nil, fmt.Errorf("failed to get journey %s: %w", journeyID, err)
	}
	j.UserEcosystemID = userID.String
	return &j, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeValue scans both native timestamps (Postgres) and text (SQLite).
type timeValue struct{ dst *time.Time }

func (v timeValue) Scan(src any) error {
	switch t := src.(type) {
	case time.Time:
		*v.dst = t.UTC()
	case string:
		return v.parse(t)
	case []byte:
		return v.parse(string(t))
	case nil:
		*v.dst = time.Time{}
	default:
		return fmt.Errorf("cannot scan %T into time", src)
	}
	return nil
}

func (v timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parse stored time %q: %w", s, err)
	}
	*v.dst = t.UTC()
	return nil
}

// jsonValue scans a JSON object column into a map.
type jsonValue struct{ dst *map[string]any }

func (v jsonValue) Scan(src any) error {
	var raw []byte
	switch b := src.(type) {
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	case nil:
		*v.dst = map[string]any{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into metadata", src)
	}
	m := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
	}
	*v.dst = m
	return nil
}
