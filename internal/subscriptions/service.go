package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the subscription service.
type ServiceParams struct {
	Repo              Repository
	Stripe            StripeBillingClient
	StripeCfg         config.StripeConfig
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns checkout, portal and the webhook-driven synchronizer.
type Service struct {
	repo      Repository
	stripe    StripeBillingClient
	stripeCfg config.StripeConfig
	outbox    *outbox.Service
	txRunner  txRunner
	logg      *logger.Logger
}

// NewService builds a subscription service. A nil Stripe client is accepted;
// payment features then decline with a configuration error instead of crashing.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:      params.Repo,
		stripe:    params.Stripe,
		stripeCfg: params.StripeCfg,
		outbox:    params.Outbox,
		txRunner:  params.TransactionRunner,
		logg:      params.Logger,
	}, nil
}

// MeView is the entitlement summary returned to the authenticated user.
type MeView struct {
	Tier              enums.SubscriptionTier   `json:"tier"`
	Status            enums.SubscriptionStatus `json:"status"`
	CurrentPeriodEnd  *string                  `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool                     `json:"cancelAtPeriodEnd"`
	HasBillingProfile bool                     `json:"hasBillingProfile"`
}

// Me returns the user's effective subscription state. Users without a record
// read as FREE rather than erroring.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*MeView, error) {
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return &MeView{Tier: enums.SubscriptionTierFree, Status: enums.SubscriptionStatusIncomplete}, nil
	}
	view := &MeView{
		Tier:              sub.Tier,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		HasBillingProfile: sub.StripeCustomerID != "",
	}
	if !IsActiveStatus(sub.Status) {
		view.Tier = enums.SubscriptionTierFree
	}
	if sub.CurrentPeriodEnd != nil {
		formatted := sub.CurrentPeriodEnd.UTC().Format(time.RFC3339)
		view.CurrentPeriodEnd = &formatted
	}
	return view, nil
}

// Checkout starts a Stripe Checkout session for the PRO plan and returns its
// URL. The local record is created lazily on first checkout.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotConfigured, "payment integration is not configured")
	}
	if s.stripeCfg.ProPriceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotConfigured, "pro plan price is not configured")
	}

	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	if sub != nil && sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID != "" {
		remote, err := s.stripe.GetSubscription(ctx, *sub.StripeSubscriptionID, &stripe.SubscriptionParams{})
		if err == nil && remote != nil && isRemoteAlive(remote.Status) {
			return "", pkgerrors.New(pkgerrors.CodeConflict, "a subscription already exists for this account").
				WithDetails(map[string]any{"status": string(remote.Status)})
		}
		// A dead or missing remote subscription falls through to a fresh
		// checkout; the webhook synchronizer will settle the record.
		if err != nil && s.logg != nil {
			s.logg.Warn(ctx, "stored stripe subscription could not be fetched, proceeding to checkout")
		}
	}

	if sub == nil {
		cust, err := s.stripe.CreateCustomer(ctx, &stripe.CustomerParams{
			Params: stripe.Params{Metadata: map[string]string{"user_id": userID.String()}},
		})
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe customer")
		}
		sub = &models.Subscription{
			ID:               uuid.New(),
			UserID:           userID,
			Tier:             enums.SubscriptionTierFree,
			Status:           enums.SubscriptionStatusIncomplete,
			StripeCustomerID: cust.ID,
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			return "", err
		}
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(sub.StripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.stripeCfg.ProPriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.stripeCfg.CheckoutSuccess),
		CancelURL:  stripe.String(s.stripeCfg.CheckoutCancel),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": userID.String()},
		},
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}
	return session.URL, nil
}

// Portal returns a Stripe billing portal URL for an existing billing profile.
func (s *Service) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.stripe == nil {
		return "", pkgerrors.New(pkgerrors.CodeNotConfigured, "payment integration is not configured")
	}
	sub, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "no billing profile")
	}
	session, err := s.stripe.CreatePortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(sub.StripeCustomerID),
		ReturnURL: stripe.String(s.stripeCfg.PortalReturnURL),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create portal session")
	}
	return session.URL, nil
}

// SyncFromStripe upserts the local record from a subscription created/updated
// event. Tier, status and period bounds are copied verbatim; local code never
// sets them outside this path.
func (s *Service) SyncFromStripe(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.FindByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}

		if stored == nil {
			userID, metadataErr := UserIDFromMetadata(stripeSub.Metadata)
			if metadataErr != nil {
				return metadataErr
			}
			// The checkout flow may have created a customer-only row already.
			stored, err = repo.FindByUserID(ctx, userID)
			if err != nil {
				return err
			}
			if stored == nil {
				built, buildErr := BuildSubscriptionFromStripe(stripeSub, userID, s.stripeCfg.ProPriceID)
				if buildErr != nil {
					return buildErr
				}
				if err := repo.Create(ctx, built); err != nil {
					return err
				}
				stored = built
				return s.emitSynced(ctx, tx, stored)
			}
		}

		if err := UpdateSubscriptionFromStripe(stored, stripeSub, s.stripeCfg.ProPriceID); err != nil {
			return err
		}
		if err := repo.Update(ctx, stored); err != nil {
			return err
		}
		return s.emitSynced(ctx, tx, stored)
	})
}

// HandleDeleted marks the local record canceled and clears the external
// subscription identifier. Unknown subscriptions are ignored.
func (s *Service) HandleDeleted(ctx context.Context, stripeSub *stripe.Subscription) error {
	if stripeSub == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		stored, err := repo.FindByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			if s.logg != nil {
				s.logg.Warn(ctx, "delete event for unknown subscription ignored")
			}
			return nil
		}
		stored.Status = enums.SubscriptionStatusCanceled
		stored.StripeSubscriptionID = nil
		if err := repo.Update(ctx, stored); err != nil {
			return err
		}
		// A replayed delete after a re-sync must not notify twice.
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionCanceled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   stored.ID,
			Data:          map[string]any{"userId": stored.UserID.String()},
			Version:       1,
		})
	})
}

// isRemoteAlive reports whether the Stripe-side subscription still represents
// an open billing relationship that a new checkout would duplicate.
func isRemoteAlive(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return false
	}
	return true
}

func (s *Service) emitSynced(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSubscriptionSynced,
		AggregateType: enums.AggregateSubscription,
		AggregateID:   sub.ID,
		Data: map[string]any{
			"userId": sub.UserID.String(),
			"tier":   string(sub.Tier),
			"status": string(sub.Status),
		},
		Version: 1,
	})
}
