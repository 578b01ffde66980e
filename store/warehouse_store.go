// store/warehouse_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ecosystem/analytics/database"
	"ecosystem/analytics/models"
)

// seriesIntervals are the ClickHouse toStartOf<Interval> suffixes allowed in
// series queries. The interval is interpolated into SQL, so nothing outside
// this set may reach it.
var seriesIntervals = map[string]struct{}{
	"Minute": {}, "Hour": {}, "Day": {}, "Week": {}, "Month": {}, "Quarter": {}, "Year": {},
}

func IsValidInterval(interval string) bool {
	_, ok := seriesIntervals[interval]
	return ok
}

// WarehouseStore mirrors accepted events into ClickHouse for time-series
// reporting. It is not the system of record; the SQL store is.
type WarehouseStore struct {
	DB *database.ClickHouseClient
}

func NewWarehouseStore(chClient *database.ClickHouseClient) *WarehouseStore {
	return &WarehouseStore{DB: chClient}
}

// MirrorEvents appends events in one batch. The table is a
// ReplacingMergeTree keyed on event_id, so retries collapse on merge.
func (s *WarehouseStore) MirrorEvents(ctx context.Context, events []models.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.DB.Conn.PrepareBatch(ctx, `
		INSERT INTO analytics_events (
			event_id, event_name, domain, entity, action, timestamp,
			journey_id, user_ecosystem_id, trace_id, span_id, source, metadata
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, ev := range events {
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for event %s: %w", ev.EventID, err)
		}
		if err := batch.Append(
			ev.EventID,
			ev.EventName,
			ev.Domain,
			ev.Entity,
			ev.Action,
			ev.Timestamp,
			ev.JourneyID,
			ev.UserEcosystemID,
			ev.TraceID,
			ev.SpanID,
			ev.Source,
			string(meta),
		); err != nil {
			return fmt.Errorf("append event %s to batch: %w", ev.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// MirrorEvent is the single-event form used by the background fan-out.
func (s *WarehouseStore) MirrorEvent(ctx context.Context, ev models.AnalyticsEvent) error {
	return s.MirrorEvents(ctx, []models.AnalyticsEvent{ev})
}

func (s *WarehouseStore) GetEventCountsOverTime(ctx context.Context, interval string, start, end time.Time, domainFilter string) ([]models.EventCountByTime, error) {
	if !IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	args := []any{start, end}
	selectCols := fmt.Sprintf("toStartOf%s(timestamp) AS time_bucket, count() AS total_events", interval)
	groupBy := "time_bucket"
	where := "WHERE timestamp >= ? AND timestamp <= ?"
	orderBy := "time_bucket ASC"
	byDomain := domainFilter != ""

	if byDomain {
		selectCols += ", domain"
		groupBy += ", domain"
		where += " AND domain = ?"
		args = append(args, domainFilter)
		orderBy += ", domain ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM analytics_events FINAL
		%s
		GROUP BY %s
		ORDER BY %s
	`, selectCols, where, groupBy, orderBy)

	rows, err := s.DB.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event counts over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventCountByTime{}
	for rows.Next() {
		var (
			bucket time.Time
			count  uint64
			domain string
			r      models.EventCountByTime
		)
		if byDomain {
			if err := rows.Scan(&bucket, &count, &domain); err != nil {
				return nil, fmt.Errorf("scan event count row: %w", err)
			}
			r.Domain = &domain
		} else if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan event count row: %w", err)
		}
		r.Time = bucket
		r.Count = count
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during event counts query: %w", err)
	}
	return results, nil
}

func (s *WarehouseStore) GetUniqueJourneysOverTime(ctx context.Context, interval string, start, end time.Time) ([]models.EventCountByTime, error) {
	if !IsValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	query := fmt.Sprintf(`
		SELECT toStartOf%s(timestamp) AS time_bucket, uniq(journey_id) AS journeys
		FROM analytics_events FINAL
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY time_bucket
		ORDER BY time_bucket ASC
	`, interval)

	rows, err := s.DB.Conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query unique journeys over time: %w", err)
	}
	defer rows.Close()

	results := []models.EventCountByTime{}
	for rows.Next() {
		var bucket time.Time
		var journeys uint64
		if err := rows.Scan(&bucket, &journeys); err != nil {
			return nil, fmt.Errorf("scan unique journeys row: %w", err)
		}
		results = append(results, models.EventCountByTime{Time: bucket, Count: journeys})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows for unique journeys: %w", err)
	}
	return results, nil
}
