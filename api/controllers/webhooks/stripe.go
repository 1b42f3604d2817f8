package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
	DeadLetter(ctx context.Context, event *stripe.Event, cause error) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook receives Stripe subscription lifecycle events. A bad signature
// is rejected so the sender retries; a handler failure is acknowledged anyway
// and the event is dead-lettered, because Stripe's retries would hit the same
// failure while the DLQ row keeps the event recoverable.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, client.SigningSecret())
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if logg != nil {
				logCtx := logg.WithField(ctx, "stripe_event_id", event.ID)
				logg.Error(logCtx, "stripe event handler failed; dead-lettering", err)
			}
			if dlqErr := svc.DeadLetter(ctx, &event, err); dlqErr != nil {
				// Could not journal the failure either; unmark so Stripe's
				// retry gets another attempt.
				_ = guard.Delete(ctx, event.ID)
				responses.WriteError(ctx, logg, w, dlqErr)
				return
			}
			responses.WriteSuccess(w, nil)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}
