package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers/authcontext"
	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	"github.com/hello-adam-martin/offmarket-sub000/api/validators"
	billingsvc "github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	escrowsvc "github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type escrowOverrider interface {
	Release(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error)
	Refund(ctx context.Context, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error)
}

type sweepRunner interface {
	Run(ctx context.Context) (*escrowsvc.SweepResult, error)
}

type dlqLister interface {
	List(ctx context.Context, limit int) ([]models.OutboxDLQ, error)
}

func depositIDFromPath(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid deposit id")
	}
	return id, nil
}

// EscrowRelease force-releases a held deposit. The transition guard still
// applies, so a second call conflicts instead of touching the processor twice.
func EscrowRelease(svc escrowOverrider, logg *logger.Logger) http.HandlerFunc {
	return overrideHandler(svc, logg, func(svc escrowOverrider, r *http.Request, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error) {
		return svc.Release(r.Context(), depositID, actor)
	})
}

// EscrowRefund force-refunds a held deposit.
func EscrowRefund(svc escrowOverrider, logg *logger.Logger) http.HandlerFunc {
	return overrideHandler(svc, logg, func(svc escrowOverrider, r *http.Request, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error) {
		return svc.Refund(r.Context(), depositID, actor)
	})
}

func overrideHandler(svc escrowOverrider, logg *logger.Logger, apply func(svc escrowOverrider, r *http.Request, depositID uuid.UUID, actor *outbox.ActorRef) (*models.EscrowDeposit, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := authcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		depositID, err := depositIDFromPath(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		deposit, err := apply(svc, r, depositID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, deposit)
	}
}

// ProcessExpiredEscrows runs the expiry sweep on demand and returns the batch
// result. Per-deposit failures are part of the result, not an error response.
func ProcessExpiredEscrows(sweeper sweepRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if sweeper == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}
		result, err := sweeper.Run(ctx)
		if result == nil && err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SettingsGet returns the effective billing configuration.
func SettingsGet(svc *billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		settings, err := svc.GetSettings(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

type settingsPutRequest struct {
	Settings map[string]string `json:"settings" validate:"required,min=1"`
}

// SettingsPut validates and persists billing settings. The cache is
// invalidated before the write is acknowledged.
func SettingsPut(svc *billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}
		var payload settingsPutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := svc.UpdateSettings(ctx, payload.Settings); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		settings, err := svc.GetSettings(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, settings)
	}
}

// DeadLetters lists webhook and dispatch events that gave up.
func DeadLetters(repo dlqLister, limit int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dlq repository unavailable"))
			return
		}
		rows, err := repo.List(ctx, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
