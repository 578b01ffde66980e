package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"ecosystem/analytics/models"
)

// EventStore is the durable sink for accepted events.
type EventStore interface {
	SaveEvent(ctx context.Context, ev models.AnalyticsEvent) error
}

// Publisher sends events to the bus. It must not fail its caller.
type Publisher interface {
	Publish(ctx context.Context, ev models.AnalyticsEvent)
}

// Mirror receives a copy of every accepted event for reporting.
type Mirror interface {
	MirrorEvent(ctx context.Context, ev models.AnalyticsEvent) error
}

const (
	defaultBatchConcurrency = 16
	defaultBatchTimeout     = 10 * time.Second
)

// Service composes validation, enrichment, persistence and publishing.
type Service struct {
	enricher   *Enricher
	store      EventStore
	publisher  Publisher
	mirror     Mirror
	dispatcher *Dispatcher
	logger     *slog.Logger

	batchConcurrency int
	batchTimeout     time.Duration
}

func NewService(store EventStore, publisher Publisher, dispatcher *Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		enricher:         NewEnricher(),
		store:            store,
		publisher:        publisher,
		dispatcher:       dispatcher,
		logger:           logger,
		batchConcurrency: defaultBatchConcurrency,
		batchTimeout:     defaultBatchTimeout,
	}
}

// WithMirror adds the warehouse as a third fan-out target.
func (s *Service) WithMirror(m Mirror) *Service {
	s.mirror = m
	return s
}

// WithEnricher replaces the default clock and id generators.
func (s *Service) WithEnricher(e *Enricher) *Service {
	s.enricher = e
	return s
}

// WithBatchLimits bounds how many batch items are persisted at once and for
// how long a batch may hold the request.
func (s *Service) WithBatchLimits(concurrency int, timeout time.Duration) *Service {
	if concurrency > 0 {
		s.batchConcurrency = concurrency
	}
	if timeout > 0 {
		s.batchTimeout = timeout
	}
	return s
}

// Ingest validates and enriches a single event, then hands persistence,
// publishing and mirroring to the background dispatcher. Tasks are keyed by
// journey so events of one journey reach the bus in the order they were
// accepted. The returned event is final; nothing that happens afterwards
// changes the caller's outcome.
func (s *Service) Ingest(ctx context.Context, p models.EventPayload, hints models.Correlation, logger *slog.Logger) (models.AnalyticsEvent, error) {
	if err := Validate(&p); err != nil {
		return models.AnalyticsEvent{}, err
	}
	ev, err := s.enricher.Enrich(p, hints)
	if err != nil {
		return models.AnalyticsEvent{}, err
	}

	logger = s.loggerFor(logger, ev)
	s.dispatcher.Submit(Task{Name: "persist", Key: ev.JourneyID, EventID: ev.EventID, Logger: logger, Run: func(ctx context.Context) error {
		return s.store.SaveEvent(ctx, ev)
	}})
	s.submitPublish(ev, logger)
	s.submitMirror(ev, logger)

	logger.Info("analytics event accepted", "eventName", ev.EventName, "domain", ev.Domain, "assignedJourneyId", ev.JourneyID)
	return ev, nil
}

// IngestBatch enriches and persists each item independently. Items are not
// schema-validated and wrongly typed fields are coerced; an item counts as
// failed only when it is not a JSON object, carries an unparsable timestamp,
// or cannot be stored. Publishing
// stays in the background and never affects the counts.
func (s *Service) IngestBatch(ctx context.Context, raws []json.RawMessage, hints models.Correlation, logger *slog.Logger) models.BatchResult {
	if logger == nil {
		logger = s.logger
	}
	// The client may disconnect after sending; stored items should still land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.batchTimeout)
	defer cancel()

	var accepted, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.batchConcurrency)

	for i, raw := range raws {
		g.Go(func() error {
			if err := s.ingestItem(ctx, raw, hints, logger); err != nil {
				failed.Add(1)
				logger.Warn("batch item failed", "index", i, "error", err)
				return nil
			}
			accepted.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res := models.BatchResult{
		Accepted: int(accepted.Load()),
		Failed:   int(failed.Load()),
		Total:    len(raws),
	}
	logger.Info("analytics batch processed", "accepted", res.Accepted, "failed", res.Failed, "total", res.Total)
	return res
}

func (s *Service) ingestItem(ctx context.Context, raw json.RawMessage, hints models.Correlation, logger *slog.Logger) error {
	p, err := decodeBatchItem(raw)
	if err != nil {
		return err
	}
	ev, err := s.enricher.Enrich(p, hints)
	if err != nil {
		return err
	}
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return err
	}

	itemLogger := s.loggerFor(logger, ev)
	s.submitPublish(ev, itemLogger)
	s.submitMirror(ev, itemLogger)
	return nil
}

func (s *Service) submitPublish(ev models.AnalyticsEvent, logger *slog.Logger) {
	s.dispatcher.Submit(Task{Name: "publish", Key: ev.JourneyID, EventID: ev.EventID, Logger: logger, Run: func(ctx context.Context) error {
		s.publisher.Publish(ctx, ev)
		return nil
	}})
}

func (s *Service) submitMirror(ev models.AnalyticsEvent, logger *slog.Logger) {
	if s.mirror == nil {
		return
	}
	s.dispatcher.Submit(Task{Name: "mirror", Key: ev.JourneyID, EventID: ev.EventID, Logger: logger, Run: func(ctx context.Context) error {
		return s.mirror.MirrorEvent(ctx, ev)
	}})
}

func (s *Service) loggerFor(logger *slog.Logger, ev models.AnalyticsEvent) *slog.Logger {
	if logger == nil {
		logger = s.logger
	}
	return logger.With("eventId", ev.EventID)
}
