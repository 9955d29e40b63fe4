package model

import "time"

// UsageCategory is the upstream billing family a call belongs to. The two
// families differ in cost by two orders of magnitude, so call sites must
// pass the category explicitly rather than have it inferred.
type UsageCategory string

const (
	CategorySearch UsageCategory = "search"
	CategoryList   UsageCategory = "list"
)

// UsageEvent is one entry in the ledger's event log. Rapid-fire batched
// calls with the same category and note are coalesced into a single event
// (see quota.Ledger).
type UsageEvent struct {
	ID        string        `json:"id"`
	Category  UsageCategory `json:"category"`
	Units     int           `json:"units"`
	Note      string        `json:"note"`
	Timestamp time.Time     `json:"timestamp"`
}

// UsageRecord is the persisted daily quota state for one API credential.
// Used is monotonically non-decreasing within a budget period; ResetAt
// marks the local calendar day the record belongs to.
type UsageRecord struct {
	TotalBudget int            `json:"total_budget"`
	Used        int            `json:"used"`
	ResetAt     time.Time      `json:"reset_at"`
	ByCategory  map[string]int `json:"by_category"`
	Exceeded    bool           `json:"exceeded"`
	Events      []UsageEvent   `json:"events"` // newest first
}

// Remaining returns the unspent units, floored at 0.
func (r UsageRecord) Remaining() int {
	if r.Used >= r.TotalBudget {
		return 0
	}
	return r.TotalBudget - r.Used
}

// SameLocalDay reports whether two instants fall on the same local calendar
// day. Rollover is calendar-date equality, not elapsed-24h, so a session
// running across midnight resets mid-session.
func SameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
