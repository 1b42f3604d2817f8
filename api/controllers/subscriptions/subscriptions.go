package subscriptions

import (
	"net/http"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers/authcontext"
	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	subsvc "github.com/hello-adam-martin/offmarket-sub000/internal/subscriptions"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type redirectResponse struct {
	URL string `json:"url"`
}

// Checkout starts a Stripe Checkout session for the PRO plan.
func Checkout(svc *subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		url, err := svc.Checkout(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, redirectResponse{URL: url})
	}
}

// Portal returns a Stripe billing portal session URL.
func Portal(svc *subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		url, err := svc.Portal(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, redirectResponse{URL: url})
	}
}

// Me returns the caller's effective subscription state.
func Me(svc *subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}
		userID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		view, err := svc.Me(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
