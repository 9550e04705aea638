package metering

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrymomot/meterkit/pkg/plan"
)

var (
	// ErrLimitReached is the sentinel every PlanLimitError matches via errors.Is.
	ErrLimitReached = errors.New("plan limit reached")
	// ErrFeatureLocked is the sentinel every FeatureAccessError matches via errors.Is.
	ErrFeatureLocked = errors.New("plan feature locked")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvalidIncrement     = errors.New("invalid usage increment")
	// ErrStoreFailure classifies backing-store failures; callers must
	// treat it as "could not determine entitlement" and deny the action.
	ErrStoreFailure = errors.New("entitlement store failure")
	ErrTxConflict   = errors.New("transaction conflict")
)

// PlanLimitError is a business rejection: the requested usage does not fit
// under the tenant's effective limit, or the subscription is not usable at
// all (Limit is 0 in that case). It is surfaced to the caller and never
// retried by the engine.
type PlanLimitError struct {
	Metric           plan.Metric
	Limit            int64
	CurrentUsage     int64
	Plan             plan.Tier
	Status           Status
	SuggestedUpgrade plan.Tier // empty when already on the top tier
}

func (e *PlanLimitError) Error() string {
	return fmt.Sprintf("plan limit reached: metric=%s usage=%d limit=%d plan=%s status=%s",
		e.Metric, e.CurrentUsage, e.Limit, e.Plan, e.Status)
}

func (e *PlanLimitError) Is(target error) bool {
	return target == ErrLimitReached
}

// MarshalJSON renders the wire shape consumed by callers:
// {"error":"limit_reached","limit_type":...,"current_usage":...,"allowed_limit":...,"suggested_upgrade":...}
func (e *PlanLimitError) MarshalJSON() ([]byte, error) {
	payload := struct {
		Error            string      `json:"error"`
		LimitType        plan.Metric `json:"limit_type"`
		CurrentUsage     int64       `json:"current_usage"`
		AllowedLimit     *int64      `json:"allowed_limit"`
		SuggestedUpgrade string      `json:"suggested_upgrade,omitempty"`
	}{
		Error:            "limit_reached",
		LimitType:        e.Metric,
		CurrentUsage:     e.CurrentUsage,
		SuggestedUpgrade: string(e.SuggestedUpgrade),
	}
	if e.Limit != plan.Unlimited {
		limit := e.Limit
		payload.AllowedLimit = &limit
	}
	return json.Marshal(payload)
}

// FeatureAccessError is a business rejection: the tenant's plan does not
// grant the requested feature, or the subscription is not usable.
type FeatureAccessError struct {
	Feature          plan.Feature
	Plan             plan.Tier
	SuggestedUpgrade plan.Tier
}

func (e *FeatureAccessError) Error() string {
	return fmt.Sprintf("plan feature locked: feature=%s plan=%s", e.Feature, e.Plan)
}

func (e *FeatureAccessError) Is(target error) bool {
	return target == ErrFeatureLocked
}

// MarshalJSON renders {"error":"feature_locked","feature":...,"plan":...,"suggested_upgrade":...}.
func (e *FeatureAccessError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error            string       `json:"error"`
		Feature          plan.Feature `json:"feature"`
		Plan             plan.Tier    `json:"plan"`
		SuggestedUpgrade string       `json:"suggested_upgrade,omitempty"`
	}{
		Error:            "feature_locked",
		Feature:          e.Feature,
		Plan:             e.Plan,
		SuggestedUpgrade: string(e.SuggestedUpgrade),
	})
}
