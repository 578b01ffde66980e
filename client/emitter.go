package client

import (
	"log/slog"
	"time"

	"ecosystem/analytics/models"
	"ecosystem/analytics/utils"
)

const SourceWebBFF = "web-bff"

// sender is the part of Client the emitter needs.
type sender interface {
	SendAsync(p models.EventPayload, hints models.Correlation)
}

// Emitter names the journey events the web BFF reports. Every call is fire
// and forget.
type Emitter struct {
	client sender
	logger *slog.Logger
	source string
	now    func() time.Time
	newID  func() (string, error)
}

func NewEmitter(c *Client) *Emitter {
	return &Emitter{client: c, logger: c.logger, source: SourceWebBFF, now: time.Now, newID: utils.NewEventID}
}

// Emit sends a generic event. The event id and timestamp are fixed here so
// a retried submission stays idempotent on the service side. An empty
// journey id is left for the service to generate.
func (e *Emitter) Emit(hints models.Correlation, name string, domain models.Domain, entity, action string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	eventID, err := e.newID()
	if err != nil {
		// The service assigns an id when none is sent.
		e.logger.Debug("Could not generate analytics event id", "eventName", name, "error", err)
		eventID = ""
	}
	e.client.SendAsync(models.EventPayload{
		EventID:         eventID,
		EventName:       name,
		Domain:          string(domain),
		Entity:          entity,
		Action:          action,
		Timestamp:       e.now().UTC().Format(time.RFC3339Nano),
		JourneyID:       hints.JourneyID,
		UserEcosystemID: hints.UserEcosystemID,
		TraceID:         hints.TraceID,
		SpanID:          hints.SpanID,
		Source:          e.source,
		Metadata:        metadata,
	}, hints)
}

func (e *Emitter) LoggedIn(hints models.Correlation) {
	e.Emit(hints, "logged_in", models.DomainUser, "session", "created", nil)
}

func (e *Emitter) LoggedOut(hints models.Correlation) {
	e.Emit(hints, "logged_out", models.DomainUser, "session", "ended", nil)
}

func (e *Emitter) OfferViewed(hints models.Correlation, offer map[string]any) {
	e.Emit(hints, "offer_viewed", models.DomainCreditCard, "offer", "viewed", offer)
}

func (e *Emitter) OnboardingSigned(hints models.Correlation, details map[string]any) {
	e.Emit(hints, "onboarding_signed", models.DomainCreditCard, "onboarding", "signed", details)
}

func (e *Emitter) PurchaseSimulated(hints models.Correlation, purchase map[string]any) {
	e.Emit(hints, "purchase_simulated", models.DomainCreditCard, "purchase", "simulated", purchase)
}

func (e *Emitter) LimitRaised(hints models.Correlation, limit map[string]any) {
	e.Emit(hints, "limit_raised", models.DomainCreditCard, "limit", "raised", limit)
}

func (e *Emitter) AccountReset(hints models.Correlation) {
	e.Emit(hints, "account_reset", models.DomainCreditCard, "account", "reset", nil)
}

func (e *Emitter) Navigation(hints models.Correlation, from, to string) {
	e.Emit(hints, "navigation", models.DomainPlatform, "navigation", "navigated", map[string]any{"from": from, "to": to})
}
