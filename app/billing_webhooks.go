package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/quotagate/domain/billing"
)

// BillingEvent is the normalized shape of a billing provider webhook after
// the HTTP layer decodes it. Only the fields the read model needs survive
// normalization; everything else in the provider payload is dropped.
type BillingEvent struct {
	Type             string
	AccountID        string
	CurrentPeriodEnd *time.Time
	OccurredAt       time.Time
}

// Webhook event types the engine reacts to.
const (
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionUpdated   = "subscription.updated"
	EventCancelScheduled       = "subscription.cancel_scheduled"
	EventSubscriptionEnded     = "subscription.ended"
)

// BillingWebhookService applies billing provider events to the
// subscription read model. Delivery is at-least-once and can arrive out of
// order; every handler is an idempotent upsert of the latest view, so
// replays are harmless.
type BillingWebhookService struct {
	subs   *SubscriptionService
	logger zerolog.Logger
}

// NewBillingWebhookService creates a billing webhook service.
func NewBillingWebhookService(subs *SubscriptionService, logger zerolog.Logger) *BillingWebhookService {
	return &BillingWebhookService{subs: subs, logger: logger}
}

// Handle dispatches one normalized event. Unknown event types are logged
// and acknowledged: returning an error would make the provider retry a
// delivery we will never act on.
func (s *BillingWebhookService) Handle(ctx context.Context, event BillingEvent) error {
	if event.AccountID == "" {
		return fmt.Errorf("billing event %q missing account id", event.Type)
	}

	s.logger.Info().
		Str("event", event.Type).
		Str("account_id", event.AccountID).
		Msg("handling billing webhook")

	switch event.Type {
	case EventSubscriptionActivated, EventSubscriptionUpdated:
		return s.apply(ctx, event, billing.SubscriptionStatusActive, false)
	case EventCancelScheduled:
		return s.apply(ctx, event, billing.SubscriptionStatusActive, true)
	case EventSubscriptionEnded:
		return s.apply(ctx, event, billing.SubscriptionStatusNone, false)
	default:
		s.logger.Warn().
			Str("event", event.Type).
			Str("account_id", event.AccountID).
			Msg("ignoring unknown billing event type")
		return nil
	}
}

func (s *BillingWebhookService) apply(ctx context.Context, event BillingEvent, status billing.SubscriptionStatus, cancelAtPeriodEnd bool) error {
	view := billing.SubscriptionView{
		AccountID:         event.AccountID,
		Status:            status,
		CancelAtPeriodEnd: cancelAtPeriodEnd,
		CurrentPeriodEnd:  event.CurrentPeriodEnd,
		UpdatedAt:         event.OccurredAt,
	}
	if err := s.subs.Apply(ctx, view); err != nil {
		s.logger.Error().Err(err).
			Str("event", event.Type).
			Str("account_id", event.AccountID).
			Msg("failed to apply billing event")
		return err
	}
	return nil
}
