package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

func (a *api) handleEnsureSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	sub, err := a.engine.EnsureSubscription(r.Context(), tenantID)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(sub))
}

func (a *api) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	sub, err := a.engine.GetSubscription(r.Context(), tenantID)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionView(sub))
}

type activateRequest struct {
	Plan        string    `json:"plan"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (a *api) handleActivate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		writeError(w, http.StatusBadRequest, "invalid_period")
		return
	}
	if err := a.engine.ActivateSubscription(r.Context(), tenantID, plan.Tier(req.Plan), req.PeriodStart, req.PeriodEnd); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cancelRequest struct {
	Cancel bool `json:"cancel"`
}

func (a *api) handleCancelAtPeriodEnd(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := a.engine.SetCancelAtPeriodEnd(r.Context(), tenantID, req.Cancel); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addOnRequest struct {
	Metric   string `json:"metric"`
	Quantity int64  `json:"quantity"`
}

func (a *api) handleGrantAddOn(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req addOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if err := a.engine.GrantAddOn(r.Context(), tenantID, plan.Metric(req.Metric), req.Quantity); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enforceRequest struct {
	Increments []metering.Increment `json:"increments"`
}

func (a *api) handleEnforce(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req enforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Increments) == 0 {
		writeError(w, http.StatusBadRequest, "empty_increments")
		return
	}
	if err := a.engine.EnforceUsage(r.Context(), tenantID, req.Increments...); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCheck(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeError(w, http.StatusBadRequest, "missing_metric")
		return
	}
	if err := a.engine.CheckUsageLimit(r.Context(), tenantID, plan.Metric(metric)); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	snapshot, err := a.engine.GetUsageSnapshot(r.Context(), tenantID)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"usage": snapshot})
}

func (a *api) handleSummary(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	summary, err := a.engine.GetBillingSummary(r.Context(), tenantID)
	if err != nil {
		a.renderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, billingSummaryView(summary))
}

func (a *api) handleFeature(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	feature := chi.URLParam(r, "feature")
	if err := a.engine.RequirePlanFeature(r.Context(), tenantID, plan.Feature(feature)); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleLandingPagePublished(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	if err := a.engine.RecordLandingPagePublished(r.Context(), tenantID); err != nil {
		a.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_tenant_id")
		return uuid.Nil, false
	}
	return id, true
}
