// Package webhook implements the Event/Webhook Dispatcher (spec §4.10):
// inbound event ingestion, subscription matching with an optional
// expr-lang filter, admission of a downstream execution per matching
// subscription, and delivery retry/renewal bookkeeping.
package webhook

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bifrostlabs/bifrost/internal/core/admission"
	"github.com/bifrostlabs/bifrost/internal/core/authz"
	"github.com/bifrostlabs/bifrost/internal/domain/models"
	"github.com/bifrostlabs/bifrost/internal/domain/repositories"
	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxDeliveryAttempts = 5

// Dispatcher owns event ingestion and delivery for C10.
type Dispatcher struct {
	sources       *repositories.EventSourceRepository
	subscriptions *repositories.EventSubscriptionRepository
	events        *repositories.EventRepository
	deliveries    *repositories.EventDeliveryRepository
	gate          *admission.Gate
	verifiers     map[string]func(secret string) Verifier
}

// Verifier checks an inbound request against an EventSource's adapter
// type, returning false on a signature/allowlist mismatch.
type Verifier interface {
	Verify(payload []byte, signature string) bool
}

func New(
	sources *repositories.EventSourceRepository,
	subscriptions *repositories.EventSubscriptionRepository,
	events *repositories.EventRepository,
	deliveries *repositories.EventDeliveryRepository,
	gate *admission.Gate,
) *Dispatcher {
	d := &Dispatcher{
		sources:       sources,
		subscriptions: subscriptions,
		events:        events,
		deliveries:    deliveries,
		gate:          gate,
	}
	d.verifiers = map[string]func(secret string) Verifier{
		"github":  func(secret string) Verifier { return NewGitHubSignatureVerifier(secret) },
		"generic": func(secret string) Verifier { return NewSignatureVerifier("sha256", secret) },
	}
	return d
}

// Ingest verifies an inbound webhook body against its EventSource,
// records the Event row, and fans it out to every matching subscription.
// Returns the created Event's id.
func (d *Dispatcher) Ingest(ctx context.Context, eventSourceID uuid.UUID, body []byte, signature, eventType string) (uuid.UUID, error) {
	source, err := d.sources.FindByID(ctx, eventSourceID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("event source not found: %w", err)
	}

	if source.Secret != nil {
		factory, ok := d.verifiers[source.AdapterType]
		if !ok {
			factory = d.verifiers["generic"]
		}
		if !factory(*source.Secret).Verify(body, signature) {
			return uuid.Nil, fmt.Errorf("webhook signature verification failed")
		}
	}

	var payload models.JSON
	if err := unmarshalPayload(body, &payload); err != nil {
		return uuid.Nil, fmt.Errorf("invalid event payload: %w", err)
	}

	event := &models.Event{
		ID:         uuid.New(),
		SourceID:   eventSourceID,
		EventType:  eventType,
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	if err := d.events.Create(ctx, event); err != nil {
		return uuid.Nil, fmt.Errorf("failed to record event: %w", err)
	}

	subs, err := d.subscriptions.FindBySourceID(ctx, eventSourceID)
	if err != nil {
		return event.ID, fmt.Errorf("failed to load subscriptions: %w", err)
	}

	for _, sub := range subs {
		if sub.EventType != "" && sub.EventType != eventType {
			continue
		}
		d.deliverOne(ctx, *event, source, sub)
	}

	return event.ID, nil
}

func (d *Dispatcher) deliverOne(ctx context.Context, event models.Event, source *models.EventSource, sub models.EventSubscription) {
	if sub.Filter != nil && *sub.Filter != "" {
		matched, err := evaluateFilter(*sub.Filter, event.Payload)
		if err != nil {
			log.Warn().Err(err).Str("subscription_id", sub.ID.String()).Msg("webhook: filter evaluation failed, skipping delivery")
			return
		}
		if !matched {
			return
		}
	}

	delivery := &models.EventDelivery{
		ID:             uuid.New(),
		EventID:        event.ID,
		SubscriptionID: sub.ID,
		Status:         models.DeliveryStatusPending,
	}
	if err := d.deliveries.Create(ctx, delivery); err != nil {
		log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("webhook: failed to create delivery row")
		return
	}

	d.attempt(ctx, delivery, sub, source, event.Payload, 0)
}

// attempt performs one admission attempt for a delivery, retrying later
// via the caller-driven RetryDue loop on failure.
func (d *Dispatcher) attempt(ctx context.Context, delivery *models.EventDelivery, sub models.EventSubscription, source *models.EventSource, payload models.JSON, priorAttempts int) {
	executionID, err := d.gate.Admit(ctx, admission.Request{
		WorkflowID:      &sub.WorkflowID,
		Parameters:      payload,
		TriggerType:     models.TriggerWebhook,
		Sync:            false,
		EventDeliveryID: &delivery.ID,
		Caller: authz.Caller{
			OrgID:       source.OrganizationID,
			IsSuperuser: true,
		},
	})
	if err != nil {
		attempts := priorAttempts + 1
		if attempts >= maxDeliveryAttempts {
			_ = d.deliveries.MarkFailed(ctx, delivery.ID, err.Error(), nil)
			log.Error().Err(err).Str("delivery_id", delivery.ID.String()).Msg("webhook: delivery exhausted retries")
			return
		}
		next := time.Now().Add(backoff(attempts))
		_ = d.deliveries.MarkFailed(ctx, delivery.ID, err.Error(), &next)
		return
	}

	_ = d.deliveries.MarkQueued(ctx, delivery.ID, executionID)
}

// RetryDue re-attempts every delivery whose backoff window has elapsed;
// call on a tick from the dispatcher's owning process.
func (d *Dispatcher) RetryDue(ctx context.Context) {
	due, err := d.deliveries.FindDueForRetry(ctx)
	if err != nil {
		log.Error().Err(err).Msg("webhook: failed to query deliveries due for retry")
		return
	}
	for _, delivery := range due {
		log.Info().Str("delivery_id", delivery.ID.String()).Int("attempts", delivery.Attempts).Msg("webhook: retrying delivery")
		// retryOne re-reads the subscription, event and source, so a
		// changed target workflow applies; the subscription filter is
		// not evaluated again on retry.
		d.retryOne(ctx, delivery)
	}
}

func (d *Dispatcher) retryOne(ctx context.Context, delivery models.EventDelivery) {
	sub, err := d.subscriptions.FindByID(ctx, delivery.SubscriptionID)
	if err != nil {
		_ = d.deliveries.MarkFailed(ctx, delivery.ID, "subscription no longer exists", nil)
		return
	}
	event, err := d.events.FindByID(ctx, delivery.EventID)
	if err != nil {
		_ = d.deliveries.MarkFailed(ctx, delivery.ID, "event no longer exists", nil)
		return
	}
	source, err := d.sources.FindByID(ctx, sub.EventSourceID)
	if err != nil {
		_ = d.deliveries.MarkFailed(ctx, delivery.ID, "event source no longer exists", nil)
		return
	}
	d.attempt(ctx, &delivery, *sub, source, event.Payload, delivery.Attempts)
}

// RenewExpiring handles EventSources that expire within 48h, called
// every 6h per §4.10. No renewal adapter is registered, so it does not
// renew anything: it records a "renewal required" error on each such
// source row so an operator can see why a subscription went stale.
func (d *Dispatcher) RenewExpiring(ctx context.Context) {
	expiring, err := d.sources.FindExpiringWithin(ctx, 48*time.Hour)
	if err != nil {
		log.Error().Err(err).Msg("webhook: failed to query expiring event sources")
		return
	}
	for _, source := range expiring {
		log.Warn().Str("event_source_id", source.ID.String()).Time("expires_at", *source.ExpiresAt).
			Msg("webhook: event source approaching expiry, no renewal adapter registered")
		_ = d.sources.SetError(ctx, source.ID, "renewal required: no adapter registered for this source type")
	}
}

func backoff(attempt int) time.Duration {
	seconds := math.Pow(2, float64(attempt))
	if seconds > 300 {
		seconds = 300
	}
	return time.Duration(seconds) * time.Second
}

func evaluateFilter(filterExpr string, payload models.JSON) (bool, error) {
	env := map[string]interface{}(payload)
	program, err := expr.Compile(filterExpr, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not evaluate to a boolean")
	}
	return matched, nil
}
