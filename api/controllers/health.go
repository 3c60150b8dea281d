package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/merakilabs/marketplace-backend/api/responses"
	"github.com/merakilabs/marketplace-backend/pkg/config"
	pkgerrors "github.com/merakilabs/marketplace-backend/pkg/errors"
	"github.com/merakilabs/marketplace-backend/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger is a dependency checked by the readiness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setEnvHeader(w, cfg)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and reports 503 when one fails.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setEnvHeader(w, cfg)
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, "dependency unavailable").
						WithDetails(map[string]any{"dependency": name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

func setEnvHeader(w http.ResponseWriter, cfg *config.Config) {
	if cfg != nil {
		w.Header().Set("X-Marketplace-Env", cfg.App.Env)
	}
}
