package subscriptions

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	portalsession "github.com/stripe/stripe-go/v84/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/hello-adam-martin/offmarket-sub000/pkg/stripe"
)

// StripeBillingClient exposes the subset of Stripe operations required by the
// subscription service.
type StripeBillingClient interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the shared Stripe client so the subscription service
// can be tested. Returns nil when the integration is not configured.
func NewStripeClient(api *pkgstripe.Client) StripeBillingClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	return customer.New(params)
}

func (w *stripeClientWrapper) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return checkoutsession.New(params)
}

func (w *stripeClientWrapper) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	if params != nil {
		params.Context = ctx
	}
	return portalsession.New(params)
}

func (w *stripeClientWrapper) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Get(id, params)
}
