package controllers

import (
	"net/http"

	"github.com/hello-adam-martin/offmarket-sub000/api/responses"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OffMarket-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OffMarket-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
