package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// User-facing messages returned by the query operations. Failure paths always
// carry guidance, never a bare error.
const (
	msgCollecting   = "No data recorded for this URL yet. Collection has been scheduled."
	msgWaiting      = "This URL is registered and waiting for its first crawl."
	msgStale        = "Tracking for this URL has been suspended after repeated failures; history shown may be stale."
	msgRejected     = "This URL is not on the list of tracked store domains."
	msgAlreadyKnown = "This URL is already being tracked."

	// missingFieldsMessage is logged when a Success result arrives without a
	// complete data record.
	missingFieldsMessage = "missing fields in crawl result"
)

// Service implements the job distribution and query operations over a Store,
// applying the status state machine to reported results.
type Service struct {
	store     Store
	validator *Validator
	clock     Clock
	logger    *zap.Logger
}

// NewService wires a Service.
func NewService(store Store, validator *Validator, clock Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		validator: validator,
		clock:     clock,
		logger:    logger,
	}
}

// ListWork returns the work batch for kind.
//
// Kind "retry" keeps the historical semantics: any Active URL with at least
// one Failed attempt ever is selected, including URLs that have since
// recovered to a run of successes.
func (s *Service) ListWork(ctx context.Context, kind WorkKind) ([]WorkItem, error) {
	switch kind {
	case WorkAll, WorkRetry, WorkPending:
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown work kind %q", kind)}
	}
	items, err := s.store.ListWork(ctx, kind)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	return items, nil
}

// ReportSummary counts how a reported batch was ingested.
type ReportSummary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
}

// ReportResults applies each result through the state machine. Results are
// processed independently: an unknown URL or a terminal-status URL is skipped
// without aborting the rest. A store failure aborts the whole batch with a
// PersistenceError; the caller retries later and ingestion is idempotent.
func (s *Service) ReportResults(ctx context.Context, results []CrawlResult) (ReportSummary, error) {
	var summary ReportSummary
	now := s.clock.Now()

	for _, result := range results {
		err := s.applyResult(ctx, result, now)
		switch {
		case err == nil:
			summary.Applied++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoTransition):
			summary.Skipped++
			s.logger.Warn("crawl result skipped",
				zap.Int64("url_id", result.URLID),
				zap.Error(err),
			)
		default:
			return summary, &PersistenceError{Err: err}
		}
	}
	return summary, nil
}

func (s *Service) applyResult(ctx context.Context, result CrawlResult, now time.Time) error {
	status := result.Status
	errMsg := result.ErrorMessage
	if status == AttemptSuccess && !result.Data.Complete() {
		status = AttemptFailed
		errMsg = missingFieldsMessage
		s.logger.Warn("success result demoted to failure",
			zap.Int64("url_id", result.URLID),
			zap.String("reason", missingFieldsMessage),
		)
	}

	return s.store.ApplyResult(ctx, result.URLID, func(u TrackedURL) (Transition, error) {
		if status == AttemptSuccess {
			return OnSuccess(u, now, *result.Data)
		}
		return OnFailure(u, now, errMsg)
	})
}

// StatusResponse is the payload of the url-status query.
type StatusResponse struct {
	URL     string       `json:"url"`
	Status  Status       `json:"status"`
	Message string       `json:"message,omitempty"`
	Product *Product     `json:"product,omitempty"`
	Prices  []PricePoint `json:"prices,omitempty"`
}

// Status resolves the current state of a URL. An unknown valid URL is
// registered as Pending with a user request and reported as "now collecting".
// A disallowed URL is registered as Rejected, audited, and returned as a
// ValidationError.
func (s *Service) Status(ctx context.Context, rawURL string) (StatusResponse, error) {
	canonical, err := s.validate(ctx, rawURL)
	if err != nil {
		return StatusResponse{}, err
	}

	u, err := s.store.GetURL(ctx, canonical)
	if errors.Is(err, ErrNotFound) {
		if _, _, err := s.store.TrackURL(ctx, canonical, s.clock.Now()); err != nil {
			return StatusResponse{}, &PersistenceError{Err: err}
		}
		return StatusResponse{URL: canonical, Status: StatusPending, Message: msgCollecting}, nil
	}
	if err != nil {
		return StatusResponse{}, &PersistenceError{Err: err}
	}

	switch u.Status {
	case StatusPending:
		return StatusResponse{URL: canonical, Status: StatusPending, Message: msgWaiting}, nil
	case StatusRejected:
		return StatusResponse{URL: canonical, Status: StatusRejected, Message: msgRejected}, nil
	}

	resp := StatusResponse{URL: canonical, Status: u.Status}
	if u.Status == StatusInactive {
		resp.Message = msgStale
	}
	product, err := s.store.GetProduct(ctx, u.ID)
	if errors.Is(err, ErrNotFound) {
		// Active without a product should not happen; degrade to a waiting notice.
		resp.Message = msgWaiting
		return resp, nil
	}
	if err != nil {
		return StatusResponse{}, &PersistenceError{Err: err}
	}
	prices, err := s.store.ListPrices(ctx, product.ID)
	if err != nil {
		return StatusResponse{}, &PersistenceError{Err: err}
	}
	resp.Product = &product
	resp.Prices = prices
	return resp, nil
}

// PriceRange returns the resolved product's price points within [start, end]
// inclusive, ascending by date. An unknown URL yields ErrNotFound; a range
// with no recorded points yields an empty slice.
func (s *Service) PriceRange(ctx context.Context, rawURL string, start, end time.Time) ([]PricePoint, error) {
	canonical, err := Normalize(rawURL)
	if err != nil {
		return nil, err
	}
	u, err := s.store.GetURL(ctx, canonical)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Err: err}
	}
	product, err := s.store.GetProduct(ctx, u.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Err: err}
	}
	prices, err := s.store.ListPricesRange(ctx, product.ID, start, end)
	if err != nil {
		return nil, &PersistenceError{Err: err}
	}
	if prices == nil {
		prices = []PricePoint{}
	}
	return prices, nil
}

// Collect registers a user's collection request for a URL. Rejections are
// returned as ValidationError after being audited.
func (s *Service) Collect(ctx context.Context, rawURL string) (string, error) {
	canonical, err := s.validate(ctx, rawURL)
	if err != nil {
		return "", err
	}
	_, created, err := s.store.TrackURL(ctx, canonical, s.clock.Now())
	if err != nil {
		return "", &PersistenceError{Err: err}
	}
	if !created {
		return msgAlreadyKnown, nil
	}
	return msgCollecting, nil
}

// validate canonicalizes rawURL; a rejection is recorded in the registry so
// repeated bad submissions stay auditable, then surfaced unchanged.
func (s *Service) validate(ctx context.Context, rawURL string) (string, error) {
	canonical, err := s.validator.Validate(rawURL)
	if err == nil {
		return canonical, nil
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		if recErr := s.store.RecordRejected(ctx, rawURL, verr.Reason, s.clock.Now()); recErr != nil {
			s.logger.Error("record rejected url failed",
				zap.String("url", rawURL),
				zap.Error(recErr),
			)
		}
	}
	return "", err
}
