package tracker

import "time"

const (
	// failThreshold is the fail streak length at which a URL may go Inactive.
	failThreshold = 3
	// inactiveWindow is the minimum age of the previous failure before the
	// streak is considered stale enough to retire the URL.
	inactiveWindow = 3 * 24 * time.Hour
)

// PriceUpdate describes the price point a successful crawl contributes.
type PriceUpdate struct {
	Date          time.Time
	ReleasePrice  int64
	EmployeePrice int64
}

// Transition is the effect record a state machine decision produces. The Store
// applies it atomically under a per-row lock: URL fields first, then the
// attempt entry, then the optional product/price/request effects.
type Transition struct {
	Status      Status
	FailCount   int
	LastAttempt time.Time
	Attempt     Attempt

	// Product, when set, is inserted if the URL owns no product yet.
	// Identity fields of an existing product are never rewritten.
	Product *ProductData
	// Price, when set, inserts the day's price point if absent.
	Price *PriceUpdate
	// CompleteRequest marks the most recent Pending user request Complete.
	CompleteRequest bool
}

// OnSuccess computes the transition for a successful crawl of a Pending or
// Active URL: the URL becomes Active, its fail streak resets, the product is
// created if absent, the day's price point is recorded, and a pending user
// request is completed.
func OnSuccess(u TrackedURL, now time.Time, data ProductData) (Transition, error) {
	if u.Status != StatusPending && u.Status != StatusActive {
		return Transition{}, ErrNoTransition
	}
	day := now.UTC().Truncate(24 * time.Hour)
	return Transition{
		Status:      StatusActive,
		FailCount:   0,
		LastAttempt: now,
		Attempt: Attempt{
			URLID:       u.ID,
			AttemptTime: now,
			Status:      AttemptSuccess,
		},
		Product: &data,
		Price: &PriceUpdate{
			Date:          day,
			ReleasePrice:  data.ReleasePrice,
			EmployeePrice: data.EmployeePrice,
		},
		CompleteRequest: true,
	}, nil
}

// OnFailure computes the transition for a failed crawl of a Pending or Active
// URL. The streak counter grows and, once it reaches the threshold with the
// previous attempt at least inactiveWindow old, the URL is retired to
// Inactive. The window compares the pre-update timestamp: "three consecutive
// failures spanning at least three days".
func OnFailure(u TrackedURL, now time.Time, errMsg string) (Transition, error) {
	if u.Status != StatusPending && u.Status != StatusActive {
		return Transition{}, ErrNoTransition
	}
	next := u.Status
	failCount := u.FailCount + 1
	if failCount >= failThreshold && u.LastAttempt != nil && now.Sub(*u.LastAttempt) >= inactiveWindow {
		next = StatusInactive
	}
	return Transition{
		Status:      next,
		FailCount:   failCount,
		LastAttempt: now,
		Attempt: Attempt{
			URLID:        u.ID,
			AttemptTime:  now,
			Status:       AttemptFailed,
			ErrorMessage: errMsg,
		},
	}, nil
}
