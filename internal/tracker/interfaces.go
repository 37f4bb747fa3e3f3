package tracker

import (
	"context"
	"time"
)

// Store persists the tracking registry: URLs, products, price history, the
// attempt log, and user requests. Implementations must serialize concurrent
// writers per URL and apply each ApplyResult transactionally.
type Store interface {
	// TrackURL registers a canonical URL as Pending with a linked Pending
	// user request, or returns the existing row. created reports whether a
	// new row was inserted.
	TrackURL(ctx context.Context, url string, now time.Time) (u TrackedURL, created bool, err error)

	// RecordRejected registers (or finds) the raw URL as Rejected and appends
	// a Failed attempt carrying the rejection reason, so repeated bad
	// submissions stay auditable.
	RecordRejected(ctx context.Context, rawURL, reason string, now time.Time) error

	// GetURL looks up a registry row by canonical URL.
	GetURL(ctx context.Context, url string) (TrackedURL, error)

	// ListWork selects the work batch for the given kind.
	ListWork(ctx context.Context, kind WorkKind) ([]WorkItem, error)

	// ApplyResult locks the URL row, passes its current state to apply, and
	// atomically persists the returned transition. An error from apply rolls
	// the transaction back and is returned unchanged.
	ApplyResult(ctx context.Context, urlID int64, apply func(TrackedURL) (Transition, error)) error

	// GetProduct returns the product owned by the URL, or ErrNotFound.
	GetProduct(ctx context.Context, urlID int64) (Product, error)

	// ListPrices returns all price points for a product, ascending by date.
	ListPrices(ctx context.Context, productID int64) ([]PricePoint, error)

	// ListPricesRange returns price points within [start, end] inclusive,
	// ascending by date.
	ListPricesRange(ctx context.Context, productID int64, start, end time.Time) ([]PricePoint, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
