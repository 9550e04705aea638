package metering

import "time"

// newTrialState mints a fresh trial window starting at now.
func (e *Engine) newTrialState(now time.Time) *TrialState {
	return &TrialState{
		StartedAt: now,
		EndsAt:    now.AddDate(0, 0, e.trialDays),
	}
}

// endTrial closes the trial and demotes the subscription to past_due.
// A trial already ended keeps its original EndedAt and reason.
func endTrial(sub *Subscription, reason TrialEndReason, now time.Time) {
	if sub.Trial != nil && !sub.Trial.Ended() {
		endedAt := now
		sub.Trial.EndedAt = &endedAt
		sub.Trial.EndedReason = reason
	}
	sub.Status = StatusPastDue
}

// applyLifecycle folds time-driven transitions into the subscription:
// trial expiry and cancel-at-period-end. Returns true if anything changed.
// Callers persist the mutation in the same transaction as their usage work.
func applyLifecycle(sub *Subscription, now time.Time) bool {
	switch sub.Status {
	case StatusTrial:
		if sub.Trial == nil {
			sub.Status = StatusPastDue
			return true
		}
		if sub.Trial.Ended() || !now.Before(sub.Trial.EndsAt) {
			endTrial(sub, TrialEndTimeElapsed, now)
			return true
		}
	case StatusActive:
		if sub.CancelAtPeriodEnd && sub.CurrentPeriodEnd != nil && !now.Before(*sub.CurrentPeriodEnd) {
			sub.Status = StatusCanceled
			return true
		}
	}
	return false
}

// evaluateMilestone checks whether the trial has proven out and, if so,
// closes it. The milestone is either publish+lead or the conversation cap.
// Returns the reason the trial ended, or "" if it is still open.
func (e *Engine) evaluateMilestone(sub *Subscription, now time.Time) TrialEndReason {
	if sub.Status != StatusTrial || sub.Trial == nil || sub.Trial.Ended() {
		return ""
	}
	if sub.Trial.AIConversationCount >= e.conversationCap {
		endTrial(sub, TrialEndConversationCap, now)
		return TrialEndConversationCap
	}
	if sub.Trial.PublishedLandingPage && sub.Trial.LeadCaptured {
		endTrial(sub, TrialEndMilestone, now)
		return TrialEndMilestone
	}
	return ""
}
