package inquiries

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers/authcontext"
	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	"github.com/hello-adam-martin/offmarket-sub000/api/validators"
	inquirysvc "github.com/hello-adam-martin/offmarket-sub000/internal/inquiries"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type createRequest struct {
	BuyerID    uuid.UUID `json:"buyerId" validate:"required"`
	PropertyID uuid.UUID `json:"propertyId" validate:"required"`
	Message    *string   `json:"message" validate:"omitempty,max=2000"`
}

func inquiryIDFromPath(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid inquiry id")
	}
	return id, nil
}

// Create opens a contact thread against a held deposit.
func Create(svc *inquirysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inquiry service unavailable"))
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
		inquiry, err := svc.Create(ctx, ownerID, inquirysvc.CreateParams{
			BuyerID:    payload.BuyerID,
			PropertyID: payload.PropertyID,
			Message:    payload.Message,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, inquiry)
	}
}

func resolveHandler(logg *logger.Logger, resolve func(r *http.Request, inquiryID, actorID uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		inquiryID, err := inquiryIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := resolve(r, inquiryID, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Accept resolves a thread positively. Counterpart only.
func Accept(svc *inquirysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveHandler(logg, func(r *http.Request, inquiryID, actorID uuid.UUID) (any, error) {
		return svc.Accept(r.Context(), inquiryID, actorID)
	})
}

// Decline resolves a thread negatively and refunds the deposit. Counterpart only.
func Decline(svc *inquirysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveHandler(logg, func(r *http.Request, inquiryID, actorID uuid.UUID) (any, error) {
		return svc.Decline(r.Context(), inquiryID, actorID)
	})
}

// Complete closes an accepted thread and releases the deposit. Either party.
func Complete(svc *inquirysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return resolveHandler(logg, func(r *http.Request, inquiryID, actorID uuid.UUID) (any, error) {
		return svc.Complete(r.Context(), inquiryID, actorID)
	})
}

// List returns the caller's threads, newest first.
func List(svc *inquirysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inquiry service unavailable"))
			return
		}
		userID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		rows, err := svc.ListMine(ctx, userID, 0)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
