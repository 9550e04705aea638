package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/ratelimit"
)

// Option configures the router.
type Option func(*api)

// WithLogger sets the structured logger for request-path failures.
func WithLogger(log *slog.Logger) Option {
	return func(a *api) {
		if log != nil {
			a.log = log
		}
	}
}

// WithRateLimiter applies per-tenant rate limiting to all tenant routes.
func WithRateLimiter(limiter *ratelimit.Limiter) Option {
	return func(a *api) {
		a.limiter = limiter
	}
}

// WithHealthcheck registers a named backend probe for /healthz.
func WithHealthcheck(name string, probe func(context.Context) error) Option {
	return func(a *api) {
		if name != "" && probe != nil {
			a.probes = append(a.probes, healthProbe{name: name, check: probe})
		}
	}
}

type healthProbe struct {
	name  string
	check func(context.Context) error
}

type api struct {
	engine  *metering.Engine
	log     *slog.Logger
	limiter *ratelimit.Limiter
	probes  []healthProbe
}

// NewRouter builds the HTTP surface of the engine. It exposes exactly the
// engine's entry points; there is no other way in.
func NewRouter(engine *metering.Engine, opts ...Option) http.Handler {
	if engine == nil {
		panic("httpapi: engine is required")
	}
	a := &api{engine: engine, log: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealthz)

	r.Route("/v1/tenants/{tenantID}", func(r chi.Router) {
		if a.limiter != nil {
			r.Use(ratelimit.Middleware(a.limiter, tenantKey, a.log))
		}

		r.Post("/subscription", a.handleEnsureSubscription)
		r.Get("/subscription", a.handleGetSubscription)
		r.Post("/subscription/activate", a.handleActivate)
		r.Post("/subscription/cancel-at-period-end", a.handleCancelAtPeriodEnd)
		r.Post("/subscription/add-ons", a.handleGrantAddOn)

		r.Post("/usage/enforce", a.handleEnforce)
		r.Get("/usage/check", a.handleCheck)
		r.Get("/usage", a.handleSnapshot)
		r.Get("/billing/summary", a.handleSummary)

		r.Get("/features/{feature}", a.handleFeature)

		r.Post("/signals/landing-page-published", a.handleLandingPagePublished)
	})

	return r
}

func tenantKey(r *http.Request) string {
	return chi.URLParam(r, "tenantID")
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	for _, probe := range a.probes {
		if err := probe.check(r.Context()); err != nil {
			a.log.ErrorContext(r.Context(), "healthcheck failed",
				slog.String("probe", probe.name), slog.Any("error", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"probe":  probe.name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
