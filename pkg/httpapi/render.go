package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/plan"
)

// renderError maps engine errors to wire responses. Business rejections
// carry their own JSON shapes; anything unclassified renders as an opaque
// 500 so callers treat it as "could not determine entitlement, deny".
func (a *api) renderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, metering.ErrLimitReached), errors.Is(err, metering.ErrFeatureLocked):
		writeJSON(w, http.StatusForbidden, err)
	case errors.Is(err, metering.ErrSubscriptionNotFound):
		writeError(w, http.StatusNotFound, "subscription_not_found")
	case errors.Is(err, metering.ErrInvalidIncrement):
		writeError(w, http.StatusBadRequest, "invalid_increment")
	default:
		a.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// Wire views keep JSON field naming independent of the engine's types.

type trialView struct {
	StartedAt            time.Time  `json:"started_at"`
	EndsAt               time.Time  `json:"ends_at"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	EndedReason          string     `json:"ended_reason,omitempty"`
	PublishedLandingPage bool       `json:"published_landing_page"`
	LeadCaptured         bool       `json:"lead_captured"`
	AIConversationCount  int64      `json:"ai_conversation_count"`
}

type subscriptionResponse struct {
	TenantID           string           `json:"tenant_id"`
	Plan               string           `json:"plan"`
	Status             string           `json:"status"`
	CurrentPeriodStart *time.Time       `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time       `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool             `json:"cancel_at_period_end"`
	AddOns             map[string]int64 `json:"add_ons,omitempty"`
	Trial              *trialView       `json:"trial,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

func subscriptionView(sub *metering.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		TenantID:           sub.TenantID.String(),
		Plan:               string(sub.Plan),
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CreatedAt:          sub.CreatedAt,
		UpdatedAt:          sub.UpdatedAt,
	}
	if len(sub.AddOns) > 0 {
		resp.AddOns = make(map[string]int64, len(sub.AddOns))
		for metric, n := range sub.AddOns {
			resp.AddOns[string(metric)] = n
		}
	}
	if sub.Trial != nil {
		resp.Trial = &trialView{
			StartedAt:            sub.Trial.StartedAt,
			EndsAt:               sub.Trial.EndsAt,
			EndedAt:              sub.Trial.EndedAt,
			EndedReason:          string(sub.Trial.EndedReason),
			PublishedLandingPage: sub.Trial.PublishedLandingPage,
			LeadCaptured:         sub.Trial.LeadCaptured,
			AIConversationCount:  sub.Trial.AIConversationCount,
		}
	}
	return resp
}

type summaryResponse struct {
	Subscription subscriptionResponse                 `json:"subscription"`
	Usage        map[plan.Metric]metering.MetricUsage `json:"usage"`
}

func billingSummaryView(summary *metering.BillingSummary) summaryResponse {
	return summaryResponse{
		Subscription: subscriptionView(summary.Subscription),
		Usage:        summary.Usage,
	}
}
