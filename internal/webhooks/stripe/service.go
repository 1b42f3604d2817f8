package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type subscriptionSynchronizer interface {
	SyncFromStripe(ctx context.Context, sub *stripe.Subscription) error
	HandleDeleted(ctx context.Context, sub *stripe.Subscription) error
}

type ServiceParams struct {
	Subscriptions subscriptionSynchronizer
	DLQ           *outbox.DLQRepository
	Logger        *logger.Logger
}

// Service routes verified Stripe events to the subscription synchronizer.
type Service struct {
	subs subscriptionSynchronizer
	dlq  *outbox.DLQRepository
	logg *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription synchronizer required")
	}
	if params.DLQ == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dlq repository required")
	}
	return &Service{
		subs: params.Subscriptions,
		dlq:  params.DLQ,
		logg: params.Logger,
	}, nil
}

// HandleEvent dispatches a verified event. Subscription lifecycle events feed
// the synchronizer; checkout, invoice and payment events are deliberate no-ops
// because the subscription events that follow them carry the full state.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		stripeSub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		return s.subs.SyncFromStripe(ctx, stripeSub)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		stripeSub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		return s.subs.HandleDeleted(ctx, stripeSub)
	default:
		return nil
	}
}

// DeadLetter records an event whose handler failed. The webhook endpoint still
// acknowledges the delivery, so this row is the only trace of the failure.
func (s *Service) DeadLetter(ctx context.Context, event *stripe.Event, cause error) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	var payload json.RawMessage
	if event.Data != nil {
		payload = json.RawMessage(event.Data.Raw)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	msg := cause.Error()
	return s.dlq.Insert(ctx, models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     string(event.Type),
		AggregateType: enums.AggregateWebhookEvent,
		Payload:       payload,
		ErrorReason:   enums.DLQReasonHandlerFailed,
		ErrorMessage:  &msg,
	})
}

func decodeSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
	}
	return &stripeSub, nil
}
