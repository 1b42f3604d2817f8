package inquiries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// escrowGateway is the slice of the escrow service the inquiry lifecycle
// drives.
type escrowGateway interface {
	Check(ctx context.Context, params escrow.TripleParams) (*models.EscrowDeposit, error)
	LinkInquiry(ctx context.Context, tx *gorm.DB, depositID, inquiryID uuid.UUID) error
	FindByInquiryID(ctx context.Context, inquiryID uuid.UUID) (*models.EscrowDeposit, error)
	Release(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error)
	Refund(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error)
}

// ServiceParams groups dependencies for the inquiry service.
type ServiceParams struct {
	Repo              Repository
	Escrow            escrowGateway
	Outbox            *outbox.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service owns the contact thread between an owner and a buyer. Opening a
// thread requires a held deposit; resolving it drives the deposit to its
// terminal state.
type Service struct {
	repo     Repository
	escrow   escrowGateway
	outbox   *outbox.Service
	txRunner txRunner
	logg     *logger.Logger
}

// NewService builds an inquiry service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Escrow == nil {
		return nil, errors.New("escrow gateway is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox is required")
	}
	if params.TransactionRunner == nil {
		return nil, errors.New("transaction runner is required")
	}
	return &Service{
		repo:     params.Repo,
		escrow:   params.Escrow,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// CreateParams identifies the buyer and property the owner wants to contact.
type CreateParams struct {
	BuyerID    uuid.UUID
	PropertyID uuid.UUID
	Message    *string
}

// Create opens a thread from the owner to the buyer. The owner must have a
// held deposit for the triple; the deposit is linked to the new inquiry in the
// same transaction.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, params CreateParams) (*models.Inquiry, error) {
	triple := escrow.TripleParams{
		OwnerID:    ownerID,
		BuyerID:    params.BuyerID,
		PropertyID: params.PropertyID,
	}
	deposit, err := s.escrow.Check(ctx, triple)
	if err != nil {
		return nil, err
	}
	if deposit == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "a held deposit is required before contacting the buyer")
	}

	inquiry := &models.Inquiry{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		BuyerID:     params.BuyerID,
		PropertyID:  params.PropertyID,
		Status:      enums.InquiryStatusPending,
		InitiatedBy: enums.InquiryInitiatorOwner,
		Message:     params.Message,
	}
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, inquiry); err != nil {
			return err
		}
		return s.escrow.LinkInquiry(ctx, tx, deposit.ID, inquiry.ID)
	})
	if err != nil {
		return nil, err
	}
	return inquiry, nil
}

// Accept resolves a pending thread positively. Only the counterpart of the
// initiator may accept. The deposit stays held until completion.
func (s *Service) Accept(ctx context.Context, inquiryID, actorID uuid.UUID) (*models.Inquiry, error) {
	inquiry, err := s.mustFind(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCounterpart(inquiry, actorID); err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, inquiry, enums.InquiryStatusPending, enums.InquiryStatusAccepted, actorID); err != nil {
		return nil, err
	}
	return s.mustFind(ctx, inquiryID)
}

// Decline resolves a pending thread negatively and refunds the linked deposit.
// Only the counterpart of the initiator may decline.
func (s *Service) Decline(ctx context.Context, inquiryID, actorID uuid.UUID) (*models.Inquiry, error) {
	inquiry, err := s.mustFind(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireCounterpart(inquiry, actorID); err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, inquiry, enums.InquiryStatusPending, enums.InquiryStatusDeclined, actorID); err != nil {
		return nil, err
	}
	s.refundLinkedDeposit(ctx, inquiry, actorID)
	return s.mustFind(ctx, inquiryID)
}

// Complete closes an accepted thread and releases the linked deposit to the
// platform. Either party may complete; the deal is already agreed at this
// point so the stricter counterpart check buys nothing.
func (s *Service) Complete(ctx context.Context, inquiryID, actorID uuid.UUID) (*models.Inquiry, error) {
	inquiry, err := s.mustFind(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParty(inquiry, actorID); err != nil {
		return nil, err
	}
	if err := s.resolve(ctx, inquiry, enums.InquiryStatusAccepted, enums.InquiryStatusCompleted, actorID); err != nil {
		return nil, err
	}
	s.releaseLinkedDeposit(ctx, inquiry, actorID)
	return s.mustFind(ctx, inquiryID)
}

// FindByID loads an inquiry, erroring with not found when it does not exist.
func (s *Service) FindByID(ctx context.Context, inquiryID uuid.UUID) (*models.Inquiry, error) {
	return s.mustFind(ctx, inquiryID)
}

// ListMine returns the threads the user participates in, newest first.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID, limit int) ([]models.Inquiry, error) {
	return s.repo.ListByParty(ctx, userID, limit)
}

func (s *Service) resolve(ctx context.Context, inquiry *models.Inquiry, from, to enums.InquiryStatus, actorID uuid.UUID) error {
	now := time.Now().UTC()
	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, inquiry.ID, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "inquiry cannot be resolved from its current status").
				WithDetails(map[string]any{"status": string(inquiry.Status)})
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInquiryResolved,
			AggregateType: enums.AggregateInquiry,
			AggregateID:   inquiry.ID,
			Actor:         &outbox.ActorRef{UserID: actorID},
			Data:          map[string]any{"outcome": string(to)},
			Version:       1,
		})
	})
}

// refundLinkedDeposit returns the declined owner's money. A refund failure
// here must not undo the decline; the error is logged and the deposit stays
// held for the sweep or an admin override to pick up.
func (s *Service) refundLinkedDeposit(ctx context.Context, inquiry *models.Inquiry, actorID uuid.UUID) {
	deposit, err := s.escrow.FindByInquiryID(ctx, inquiry.ID)
	if err != nil || deposit == nil {
		if err != nil {
			s.logError(ctx, inquiry, "escrow.refund.inconsistent", err)
		}
		return
	}
	if _, err := s.escrow.Refund(ctx, deposit.ID, &outbox.ActorRef{UserID: actorID}); err != nil {
		s.logError(ctx, inquiry, "escrow.refund.inconsistent", err)
	}
}

// releaseLinkedDeposit settles the fee after completion. The inquiry is
// already completed; a release failure is journaled and logged distinctly, it
// never rolls the inquiry back.
func (s *Service) releaseLinkedDeposit(ctx context.Context, inquiry *models.Inquiry, actorID uuid.UUID) {
	deposit, err := s.escrow.FindByInquiryID(ctx, inquiry.ID)
	if err != nil || deposit == nil {
		if err != nil {
			s.logError(ctx, inquiry, "escrow.release.inconsistent", err)
		}
		return
	}
	if _, err := s.escrow.Release(ctx, deposit.ID, &outbox.ActorRef{UserID: actorID}); err != nil {
		s.logError(ctx, inquiry, "escrow.release.inconsistent", err)
		s.journalReleaseFailure(ctx, deposit, inquiry, err)
	}
}

func (s *Service) journalReleaseFailure(ctx context.Context, deposit *models.EscrowDeposit, inquiry *models.Inquiry, cause error) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleaseFailed,
			AggregateType: enums.AggregateEscrowDeposit,
			AggregateID:   deposit.ID,
			Data: map[string]any{
				"inquiryId": inquiry.ID.String(),
				"error":     cause.Error(),
			},
			Version: 1,
		})
	})
	if err != nil {
		s.logError(ctx, inquiry, "escrow.release.journal_failed", err)
	}
}

func (s *Service) requireCounterpart(inquiry *models.Inquiry, actorID uuid.UUID) error {
	counterpart := inquiry.BuyerID
	if inquiry.InitiatedBy == enums.InquiryInitiatorBuyer {
		counterpart = inquiry.OwnerID
	}
	if actorID != counterpart {
		return pkgerrors.New(pkgerrors.CodeForbidden, "only the counterpart may resolve this inquiry")
	}
	return nil
}

func (s *Service) requireParty(inquiry *models.Inquiry, actorID uuid.UUID) error {
	if actorID != inquiry.OwnerID && actorID != inquiry.BuyerID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "caller is not a party to this inquiry")
	}
	return nil
}

func (s *Service) mustFind(ctx context.Context, inquiryID uuid.UUID) (*models.Inquiry, error) {
	inquiry, err := s.repo.FindByID(ctx, inquiryID)
	if err != nil {
		return nil, err
	}
	if inquiry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inquiry not found")
	}
	return inquiry, nil
}

func (s *Service) logError(ctx context.Context, inquiry *models.Inquiry, msg string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithField(ctx, "inquiry_id", inquiry.ID.String())
	s.logg.Error(logCtx, msg, err)
}
