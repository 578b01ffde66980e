package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecosystem/analytics/config"
	"ecosystem/analytics/database"
	"ecosystem/analytics/models"
)

func TestIsValidInterval(t *testing.T) {
	for _, iv := range []string{"Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year"} {
		assert.True(t, IsValidInterval(iv), iv)
	}
	assert.False(t, IsValidInterval("day"))
	assert.False(t, IsValidInterval(""))
	assert.False(t, IsValidInterval("Day); DROP TABLE x"))
}

func TestWarehouseRejectsUnknownInterval(t *testing.T) {
	s := NewWarehouseStore(nil)
	now := time.Now()

	_, err := s.GetEventCountsOverTime(context.Background(), "Day; DROP TABLE analytics_events", now.Add(-time.Hour), now, "")
	assert.ErrorContains(t, err, "invalid interval")

	_, err = s.GetUniqueJourneysOverTime(context.Background(), "fortnight", now.Add(-time.Hour), now)
	assert.ErrorContains(t, err, "invalid interval")
}

func TestWarehouseMirrorEmptyIsNoop(t *testing.T) {
	assert.NoError(t, NewWarehouseStore(nil).MirrorEvents(context.Background(), nil))
}

// TestWarehouseRoundTrip needs a ClickHouse server; set CLICKHOUSE_TEST_HOST
// (and optionally CLICKHOUSE_TEST_PORT) to run it.
func TestWarehouseRoundTrip(t *testing.T) {
	host := os.Getenv("CLICKHOUSE_TEST_HOST")
	if host == "" {
		t.Skip("CLICKHOUSE_TEST_HOST not set")
	}
	port := 9000
	if p, err := strconv.Atoi(os.Getenv("CLICKHOUSE_TEST_PORT")); err == nil {
		port = p
	}

	ctx := context.Background()
	ch, err := database.NewClickHouseDB(ctx, config.ClickHouseConfig{
		Host: host, Port: port, Database: "default", Username: "default",
	}, "analytics-service-test", quietLogger())
	require.NoError(t, err)
	t.Cleanup(ch.Close)
	require.NoError(t, ch.Migrate(ctx))

	s := NewWarehouseStore(ch)
	jrn := newJourneyID(t)
	ts := time.Now().UTC().Truncate(time.Millisecond)
	events := []models.AnalyticsEvent{
		sampleEvent("evt_a_"+jrn, jrn, ts),
		sampleEvent("evt_b_"+jrn, jrn, ts),
	}
	require.NoError(t, s.MirrorEvents(ctx, events))
	// A retried mirror of the same ids collapses under FINAL.
	require.NoError(t, s.MirrorEvent(ctx, events[0]))

	counts, err := s.GetEventCountsOverTime(ctx, "Day", ts.Add(-time.Minute), ts.Add(time.Minute), "user")
	require.NoError(t, err)
	require.NotEmpty(t, counts)
	assert.GreaterOrEqual(t, counts[0].Count, uint64(2))
	require.NotNil(t, counts[0].Domain)
	assert.Equal(t, "user", *counts[0].Domain)

	journeys, err := s.GetUniqueJourneysOverTime(ctx, "Day", ts.Add(-time.Minute), ts.Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, journeys)
	assert.GreaterOrEqual(t, journeys[0].Count, uint64(1))
}
