package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	dbpkg "github.com/hello-adam-martin/offmarket-sub000/pkg/db"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the escrow service.
type ServiceParams struct {
	Repo              Repository
	Calculator        *billing.Calculator
	Settings          *billing.SettingsCache
	Stripe            StripePaymentClient
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns the escrow deposit lifecycle. Money moves through the payment
// processor; state transitions are conditional updates so concurrent callers
// cannot double-apply them.
type Service struct {
	repo     Repository
	calc     *billing.Calculator
	settings *billing.SettingsCache
	stripe   StripePaymentClient
	outbox   *outbox.Service
	txRunner txRunner
	logg     *logger.Logger
}

// NewService builds an escrow service. A nil Stripe client is accepted;
// payment operations then decline with a configuration error.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Calculator == nil {
		return nil, errors.New("calculator is required")
	}
	if params.Settings == nil {
		return nil, errors.New("settings cache is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:     params.Repo,
		calc:     params.Calculator,
		settings: params.Settings,
		stripe:   params.Stripe,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// TripleParams identifies the (owner, buyer, property) triple a deposit
// belongs to.
type TripleParams struct {
	OwnerID    uuid.UUID
	BuyerID    uuid.UUID
	PropertyID uuid.UUID
}

func (p TripleParams) validate() error {
	if p.OwnerID == uuid.Nil || p.BuyerID == uuid.Nil || p.PropertyID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner, buyer and property are required")
	}
	if p.OwnerID == p.BuyerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner and buyer must differ")
	}
	return nil
}

// Quote is the fee preview returned before any money moves.
type Quote struct {
	AmountCents int64  `json:"amountCents"`
	FeeTier     string `json:"feeTier"`
}

// QuoteFee computes the finder's fee for the triple without side effects.
// A triple that already has a held deposit fails with a conflict carrying the
// existing deposit id so the client can resume.
func (s *Service) QuoteFee(ctx context.Context, params TripleParams, valuation *decimal.Decimal) (*Quote, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureNoHeld(ctx, params); err != nil {
		return nil, err
	}
	amount, err := s.calc.CalculateFee(ctx, valuation)
	if err != nil {
		return nil, err
	}
	tier, err := s.calc.TierName(ctx, valuation)
	if err != nil {
		return nil, err
	}
	return &Quote{AmountCents: amount, FeeTier: tier}, nil
}

// CreateResult carries the pending deposit plus the processor's client secret
// for the payment step.
type CreateResult struct {
	Deposit      *models.EscrowDeposit `json:"deposit"`
	ClientSecret string                `json:"clientSecret"`
}

// Create opens a pending deposit backed by an uncaptured payment intent.
func (s *Service) Create(ctx context.Context, params TripleParams, valuation *decimal.Decimal) (*CreateResult, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "payment integration is not configured")
	}
	if err := s.ensureNoHeld(ctx, params); err != nil {
		return nil, err
	}

	amount, err := s.calc.CalculateFee(ctx, valuation)
	if err != nil {
		return nil, err
	}

	intent, err := s.stripe.CreatePaymentIntent(ctx, &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(string(stripe.CurrencyUSD)),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Params: stripe.Params{Metadata: map[string]string{
			"owner_id":    params.OwnerID.String(),
			"buyer_id":    params.BuyerID.String(),
			"property_id": params.PropertyID.String(),
		}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	deposit := &models.EscrowDeposit{
		ID:                    uuid.New(),
		OwnerID:               params.OwnerID,
		BuyerID:               params.BuyerID,
		PropertyID:            params.PropertyID,
		AmountCents:           amount,
		Status:                enums.EscrowStatusPending,
		StripePaymentIntentID: intent.ID,
	}
	if err := s.repo.Create(ctx, deposit); err != nil {
		// Void the authorization so no orphaned hold lingers on the buyer's
		// card when the deposit row never materialized.
		if _, cancelErr := s.stripe.CancelPaymentIntent(ctx, intent.ID, &stripe.PaymentIntentCancelParams{}); cancelErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intent.ID), "failed to cancel payment intent for unpersisted deposit")
		}
		return nil, err
	}
	return &CreateResult{Deposit: deposit, ClientSecret: intent.ClientSecret}, nil
}

// Confirm captures the authorized payment and promotes the deposit to held.
// Safe to retry: a deposit that is already held is returned as-is.
func (s *Service) Confirm(ctx context.Context, depositID, actorID uuid.UUID) (*models.EscrowDeposit, error) {
	deposit, err := s.mustFind(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit.OwnerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a party to this deposit")
	}
	if deposit.Status == enums.EscrowStatusHeld {
		return deposit, nil
	}
	if deposit.Status != enums.EscrowStatusPending {
		return nil, invalidState(deposit.Status)
	}
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "payment integration is not configured")
	}
	if err := s.ensureNoHeld(ctx, TripleParams{
		OwnerID:    deposit.OwnerID,
		BuyerID:    deposit.BuyerID,
		PropertyID: deposit.PropertyID,
	}); err != nil {
		return nil, err
	}

	intent, err := s.stripe.GetPaymentIntent(ctx, deposit.StripePaymentIntentID, &stripe.PaymentIntentParams{})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment intent")
	}
	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		if _, err := s.stripe.CapturePaymentIntent(ctx, intent.ID, &stripe.PaymentIntentCaptureParams{}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture payment intent")
		}
	case stripe.PaymentIntentStatusSucceeded:
		// Already captured on a previous attempt. Proceed to the local transition.
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not ready to capture").
			WithDetails(map[string]any{"paymentStatus": string(intent.Status)})
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().AddDate(0, 0, settings.EscrowExpiryDays)

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MarkHeld(ctx, deposit.ID, expiresAt)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, "ux_escrow_deposits_held_triple") {
				return s.heldConflict(ctx, deposit)
			}
			return err
		}
		if !ok {
			return invalidState(deposit.Status)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowHeld,
			AggregateType: enums.AggregateEscrowDeposit,
			AggregateID:   deposit.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data: map[string]any{
				"amountCents": deposit.AmountCents,
				"expiresAt":   expiresAt,
			},
			Version: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.mustFind(ctx, deposit.ID)
}

// Check returns the held deposit for the triple, or nil when there is none.
func (s *Service) Check(ctx context.Context, params TripleParams) (*models.EscrowDeposit, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return s.repo.FindHeldByTriple(ctx, params.OwnerID, params.PropertyID, params.BuyerID)
}

// Release moves a held deposit to released; the platform keeps the captured
// fee. Non-held deposits fail with a state conflict and are not mutated.
func (s *Service) Release(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error) {
	deposit, err := s.mustFind(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit.Status != enums.EscrowStatusHeld {
		return nil, invalidState(deposit.Status)
	}

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionFromHeld(ctx, deposit.ID, enums.EscrowStatusReleased, now)
		if err != nil {
			return err
		}
		if !ok {
			return invalidState(deposit.Status)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleased,
			AggregateType: enums.AggregateEscrowDeposit,
			AggregateID:   deposit.ID,
			Actor:         actor,
			Data:          map[string]any{"amountCents": deposit.AmountCents},
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.mustFind(ctx, deposit.ID)
}

// Refund returns a held deposit's funds to the owner and records the refunded
// terminal state.
func (s *Service) Refund(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error) {
	return s.refundTo(ctx, depositID, enums.EscrowStatusRefunded, actor)
}

// ExpireRefund refunds a held deposit whose expiry deadline passed and records
// the expired terminal state. The money movement is identical to Refund; only
// the terminal label differs.
func (s *Service) ExpireRefund(ctx context.Context, depositID uuid.UUID) (*models.EscrowDeposit, error) {
	return s.refundTo(ctx, depositID, enums.EscrowStatusExpired, nil)
}

func (s *Service) refundTo(ctx context.Context, depositID uuid.UUID, target enums.EscrowStatus, actor *outbox.ActorRef) (*models.EscrowDeposit, error) {
	deposit, err := s.mustFind(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit.Status != enums.EscrowStatusHeld {
		return nil, invalidState(deposit.Status)
	}
	if s.stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotConfigured, "payment integration is not configured")
	}

	refundParams := &stripe.RefundParams{
		PaymentIntent: stripe.String(deposit.StripePaymentIntentID),
	}
	// Keyed on the deposit so a retry after a partial failure reuses the same
	// refund instead of attempting a second one.
	refundParams.SetIdempotencyKey("escrow-refund-" + deposit.ID.String())
	if _, err := s.stripe.CreateRefund(ctx, refundParams); err != nil && !isAlreadyRefunded(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund payment intent")
	}

	eventType := enums.EventEscrowRefunded
	if target == enums.EscrowStatusExpired {
		eventType = enums.EventEscrowExpired
	}

	now := time.Now().UTC()
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.TransitionFromHeld(ctx, deposit.ID, target, now)
		if err != nil {
			return err
		}
		if !ok {
			return invalidState(deposit.Status)
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateEscrowDeposit,
			AggregateID:   deposit.ID,
			Actor:         actor,
			Data:          map[string]any{"amountCents": deposit.AmountCents},
			Version:       1,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.mustFind(ctx, deposit.ID)
}

// LinkInquiry attaches a newly created inquiry to the held deposit gating it.
func (s *Service) LinkInquiry(ctx context.Context, tx *gorm.DB, depositID, inquiryID uuid.UUID) error {
	repo := s.repo.WithTx(tx)
	ok, err := repo.LinkInquiry(ctx, depositID, inquiryID)
	if err != nil {
		return err
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "deposit is not held or already linked")
	}
	return nil
}

// FindByID loads a deposit, erroring with not found when it does not exist.
func (s *Service) FindByID(ctx context.Context, depositID uuid.UUID) (*models.EscrowDeposit, error) {
	return s.mustFind(ctx, depositID)
}

// FindByInquiryID loads the deposit linked to an inquiry, or nil when the
// inquiry has none.
func (s *Service) FindByInquiryID(ctx context.Context, inquiryID uuid.UUID) (*models.EscrowDeposit, error) {
	return s.repo.FindByInquiryID(ctx, inquiryID)
}

func (s *Service) ensureNoHeld(ctx context.Context, params TripleParams) error {
	existing, err := s.repo.FindHeldByTriple(ctx, params.OwnerID, params.PropertyID, params.BuyerID)
	if err != nil {
		return err
	}
	if existing != nil {
		return heldConflictError(existing.ID)
	}
	return nil
}

func (s *Service) heldConflict(ctx context.Context, deposit *models.EscrowDeposit) error {
	existing, err := s.repo.FindHeldByTriple(ctx, deposit.OwnerID, deposit.PropertyID, deposit.BuyerID)
	if err == nil && existing != nil {
		return heldConflictError(existing.ID)
	}
	return heldConflictError(uuid.Nil)
}

func (s *Service) mustFind(ctx context.Context, depositID uuid.UUID) (*models.EscrowDeposit, error) {
	deposit, err := s.repo.FindByID(ctx, depositID)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deposit not found")
	}
	return deposit, nil
}

func heldConflictError(existingID uuid.UUID) error {
	err := pkgerrors.New(pkgerrors.CodeConflict, "a deposit is already held for this buyer and property")
	if existingID != uuid.Nil {
		err = err.WithDetails(map[string]any{"depositId": existingID.String()})
	}
	return err
}

// isAlreadyRefunded reports whether the processor declined the refund because
// the money already went back. The local transition still has to happen, so
// the caller treats this as success.
func isAlreadyRefunded(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded
	}
	return false
}

func invalidState(current enums.EscrowStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("transition not allowed from %s", current)).
		WithDetails(map[string]any{"status": string(current)})
}
