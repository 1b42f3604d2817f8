package escrow

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers/authcontext"
	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	"github.com/hello-adam-martin/offmarket-sub000/api/validators"
	escrowsvc "github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type quoteRequest struct {
	BuyerID    uuid.UUID `json:"buyerId" validate:"required"`
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	Valuation  *string   `json:"valuation"`
}

type createRequest struct {
	BuyerID    uuid.UUID `json:"buyerId" validate:"required"`
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	Valuation  *string   `json:"valuation"`
}

type confirmRequest struct {
	DepositID uuid.UUID `json:"depositId" validate:"required"`
}

func parseValuation(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	parsed, err := decimal.NewFromString(*raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid valuation")
	}
	return &parsed, nil
}

// Quote previews the finder's fee for a buyer/property pair.
func Quote(svc *escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		ownerID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload quoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		valuation, err := parseValuation(payload.Valuation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		quote, err := svc.QuoteFee(ctx, escrowsvc.TripleParams{
			OwnerID:    ownerID,
			BuyerID:    payload.BuyerID,
			PropertyID: payload.PropertyID,
		}, valuation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}

// Create opens a pending deposit and returns the payment client secret.
func Create(svc *escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		ownerID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		valuation, err := parseValuation(payload.Valuation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.Create(ctx, escrowsvc.TripleParams{
			OwnerID:    ownerID,
			BuyerID:    payload.BuyerID,
			PropertyID: payload.PropertyID,
		}, valuation)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// Confirm captures the authorized payment and promotes the deposit to held.
func Confirm(svc *escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		ownerID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var payload confirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deposit, err := svc.Confirm(ctx, payload.DepositID, ownerID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

// Check returns the held deposit for the query triple, or null.
func Check(svc *escrowsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		ownerID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		buyerID, err := uuid.Parse(r.URL.Query().Get("buyerId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "buyerId query parameter is required"))
			return
		}
		propertyID, err := uuid.Parse(r.URL.Query().Get("propertyId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "propertyId query parameter is required"))
			return
		}
		deposit, err := svc.Check(ctx, escrowsvc.TripleParams{
			OwnerID:    ownerID,
			BuyerID:    buyerID,
			PropertyID: propertyID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}
