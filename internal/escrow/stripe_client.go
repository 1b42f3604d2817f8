package escrow

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	pkgstripe "github.com/hello-adam-martin/offmarket-sub000/pkg/stripe"
)

// StripePaymentClient exposes the subset of Stripe operations the escrow
// state machine depends on but does not implement.
type StripePaymentClient interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the shared Stripe client so the escrow service can be
// tested. Returns nil when the integration is not configured.
func NewStripeClient(api *pkgstripe.Client) StripePaymentClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

func (w *stripeClientWrapper) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Get(id, params)
}

func (w *stripeClientWrapper) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Capture(id, params)
}

func (w *stripeClientWrapper) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.Cancel(id, params)
}

func (w *stripeClientWrapper) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	if params != nil {
		params.Context = ctx
	}
	return refund.New(params)
}
