package limits

import (
	"net/http"

	"github.com/hello-adam-martin/offmarket-sub000/api/controllers/authcontext"
	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	"github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type limitView struct {
	Unlimited bool `json:"unlimited"`
	Value     *int `json:"value,omitempty"`
}

type meResponse struct {
	Tier   string               `json:"tier"`
	Limits map[string]limitView `json:"limits"`
	Flags  map[string]bool      `json:"flags"`
}

func newLimitView(limit billing.Limit) limitView {
	if bound, ok := limit.Bound(); ok {
		return limitView{Value: &bound}
	}
	return limitView{Unlimited: true}
}

// Me returns the caller's effective tier with its limits and flags.
func Me(gate *billing.Gate, cache *billing.SettingsCache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if gate == nil || cache == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "feature gate unavailable"))
			return
		}
		userID, err := authcontext.ResolveUserID(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		tier, err := gate.EffectiveTier(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		settings, err := cache.Load(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		table := settings.TierTable(tier)
		resp := meResponse{
			Tier:   string(tier),
			Limits: make(map[string]limitView, len(table.Limits)),
			Flags:  make(map[string]bool, len(table.Flags)),
		}
		for feature, limit := range table.Limits {
			resp.Limits[string(feature)] = newLimitView(limit)
		}
		for flag, enabled := range table.Flags {
			resp.Flags[flag] = enabled
		}
		responses.WriteSuccess(w, resp)
	}
}
