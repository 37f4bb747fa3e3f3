// Package memory provides an in-memory Store for tests and single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

const dayLayout = "2006-01-02"

// Store keeps the whole registry in process memory behind one mutex, which
// trivially satisfies the per-URL writer serialization requirement.
type Store struct {
	mu sync.Mutex

	urls     map[string]*tracker.TrackedURL
	urlsByID map[int64]*tracker.TrackedURL
	products map[int64]*tracker.Product // keyed by url_id
	prices   map[int64]map[string]tracker.PricePoint
	attempts []tracker.Attempt
	requests []*tracker.UserRequest

	nextURLID     int64
	nextProductID int64
	nextRequestID int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		urls:     make(map[string]*tracker.TrackedURL),
		urlsByID: make(map[int64]*tracker.TrackedURL),
		products: make(map[int64]*tracker.Product),
		prices:   make(map[int64]map[string]tracker.PricePoint),
	}
}

// TrackURL implements tracker.Store.
func (s *Store) TrackURL(ctx context.Context, url string, now time.Time) (tracker.TrackedURL, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.urls[url]; ok {
		return *existing, false, nil
	}
	u := s.insertURL(url, tracker.StatusPending, now)
	s.insertRequest(u.ID, now)
	return *u, true, nil
}

// RecordRejected implements tracker.Store.
func (s *Store) RecordRejected(ctx context.Context, rawURL, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.urls[rawURL]
	if !ok {
		u = s.insertURL(rawURL, tracker.StatusRejected, now)
	}
	s.attempts = append(s.attempts, tracker.Attempt{
		URLID:        u.ID,
		AttemptTime:  now,
		Status:       tracker.AttemptFailed,
		ErrorMessage: "rejected: " + reason,
	})
	return nil
}

// GetURL implements tracker.Store.
func (s *Store) GetURL(ctx context.Context, url string) (tracker.TrackedURL, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.urls[url]
	if !ok {
		return tracker.TrackedURL{}, tracker.ErrNotFound
	}
	return *u, nil
}

// ListWork implements tracker.Store.
func (s *Store) ListWork(ctx context.Context, kind tracker.WorkKind) ([]tracker.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []tracker.WorkItem
	for _, u := range s.urls {
		switch kind {
		case tracker.WorkPending:
			if u.Status != tracker.StatusPending {
				continue
			}
		case tracker.WorkAll:
			if u.Status != tracker.StatusActive {
				continue
			}
		case tracker.WorkRetry:
			if u.Status != tracker.StatusActive || !s.hasFailedAttempt(u.ID) {
				continue
			}
		}
		items = append(items, tracker.WorkItem{URLID: u.ID, URL: u.URL})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].URLID < items[j].URLID })
	return items, nil
}

// ApplyResult implements tracker.Store.
func (s *Store) ApplyResult(ctx context.Context, urlID int64, apply func(tracker.TrackedURL) (tracker.Transition, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.urlsByID[urlID]
	if !ok {
		return tracker.ErrNotFound
	}
	tr, err := apply(*u)
	if err != nil {
		return err
	}

	u.Status = tr.Status
	u.FailCount = tr.FailCount
	last := tr.LastAttempt
	u.LastAttempt = &last
	s.attempts = append(s.attempts, tr.Attempt)

	if tr.Product != nil {
		if _, exists := s.products[urlID]; !exists {
			s.nextProductID++
			s.products[urlID] = &tracker.Product{
				ID:       s.nextProductID,
				URLID:    urlID,
				Name:     tr.Product.ProductName,
				Model:    tr.Product.ModelName,
				Options:  tr.Product.Options,
				ImageURL: tr.Product.ImageURL,
			}
		}
	}
	if tr.Price != nil {
		if product, exists := s.products[urlID]; exists {
			day := tr.Price.Date.UTC().Format(dayLayout)
			points, ok := s.prices[product.ID]
			if !ok {
				points = make(map[string]tracker.PricePoint)
				s.prices[product.ID] = points
			}
			if _, dup := points[day]; !dup {
				points[day] = tracker.PricePoint{
					ProductID:     product.ID,
					Date:          tr.Price.Date.UTC().Truncate(24 * time.Hour),
					ReleasePrice:  tr.Price.ReleasePrice,
					EmployeePrice: tr.Price.EmployeePrice,
				}
			}
		}
	}
	if tr.CompleteRequest {
		s.completeLatestRequest(urlID)
	}
	return nil
}

// GetProduct implements tracker.Store.
func (s *Store) GetProduct(ctx context.Context, urlID int64) (tracker.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[urlID]
	if !ok {
		return tracker.Product{}, tracker.ErrNotFound
	}
	return *product, nil
}

// ListPrices implements tracker.Store.
func (s *Store) ListPrices(ctx context.Context, productID int64) ([]tracker.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricesAscending(productID, nil, nil), nil
}

// ListPricesRange implements tracker.Store.
func (s *Store) ListPricesRange(ctx context.Context, productID int64, start, end time.Time) ([]tracker.PricePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricesAscending(productID, &start, &end), nil
}

// Requests returns a snapshot of user requests for a URL, oldest first.
// Used by tests to observe request completion.
func (s *Store) Requests(urlID int64) []tracker.UserRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []tracker.UserRequest
	for _, r := range s.requests {
		if r.URLID == urlID {
			out = append(out, *r)
		}
	}
	return out
}

// Attempts returns a snapshot of the attempt log for a URL, oldest first.
func (s *Store) Attempts(urlID int64) []tracker.Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []tracker.Attempt
	for _, a := range s.attempts {
		if a.URLID == urlID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) insertURL(url string, status tracker.Status, now time.Time) *tracker.TrackedURL {
	s.nextURLID++
	u := &tracker.TrackedURL{
		ID:        s.nextURLID,
		URL:       url,
		Status:    status,
		AddedDate: now,
	}
	s.urls[url] = u
	s.urlsByID[u.ID] = u
	return u
}

func (s *Store) insertRequest(urlID int64, now time.Time) {
	s.nextRequestID++
	s.requests = append(s.requests, &tracker.UserRequest{
		ID:          s.nextRequestID,
		URLID:       urlID,
		Status:      tracker.RequestPending,
		RequestedAt: now,
	})
}

func (s *Store) completeLatestRequest(urlID int64) {
	for i := len(s.requests) - 1; i >= 0; i-- {
		r := s.requests[i]
		if r.URLID == urlID && r.Status == tracker.RequestPending {
			r.Status = tracker.RequestComplete
			return
		}
	}
}

func (s *Store) hasFailedAttempt(urlID int64) bool {
	for _, a := range s.attempts {
		if a.URLID == urlID && a.Status == tracker.AttemptFailed {
			return true
		}
	}
	return false
}

func (s *Store) pricesAscending(productID int64, start, end *time.Time) []tracker.PricePoint {
	points := s.prices[productID]
	out := make([]tracker.PricePoint, 0, len(points))
	for _, p := range points {
		if start != nil && p.Date.Before(start.UTC().Truncate(24*time.Hour)) {
			continue
		}
		if end != nil && p.Date.After(end.UTC().Truncate(24*time.Hour)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
