package session

import (
	"time"

	"adminpanel/api/internal/models"
)

// AbsoluteExpiry is fixed at creation and never extended afterwards.
func AbsoluteExpiry(policy models.SessionPolicy, now time.Time) time.Time {
	return now.Add(policy.AbsoluteTimeout())
}

func IsAbsoluteExpired(s models.Session, now time.Time) bool {
	return now.After(s.ExpiresAtAbsolute)
}

// IsInactive reports whether more than the policy's inactivity timeout has
// elapsed since the last recorded activity.
func IsInactive(s models.Session, policy models.SessionPolicy, now time.Time) bool {
	return now.After(s.LastActivityAt.Add(policy.InactivityTimeout()))
}

// ShouldRecordActivity debounces activity writes to at most one per threshold.
func ShouldRecordActivity(s models.Session, now time.Time, threshold time.Duration) bool {
	return now.Sub(s.LastActivityAt) >= threshold
}
