package model

import "time"

// Credential is an issued API key with a monthly render quota.
// Records are append-only: keys are never deleted, only exhausted.
type Credential struct {
	Key            string    `json:"key"`
	Tier           string    `json:"tier"`
	MonthlyLimit   int64     `json:"monthly_limit"`
	UsedThisPeriod int64     `json:"used_this_period"`
	PeriodAnchor   string    `json:"period_anchor"` // year-month tag, e.g. "2026-08"
	OwnerHint      string    `json:"owner_hint,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PeriodTag returns the calendar-month tag used for quota resets.
func PeriodTag(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// Remaining reports the quota left in the credential's current period.
// It does not normalize the period; the store does that under lock.
func (c Credential) Remaining() int64 {
	n := c.MonthlyLimit - c.UsedThisPeriod
	if n < 0 {
		return 0
	}
	return n
}
