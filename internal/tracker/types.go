// Package tracker defines the core types and logic of the price tracking registry.
package tracker

import "time"

// Status represents the lifecycle state of a tracked URL.
type Status string

// Tracked URL status values persisted in the registry.
const (
	StatusPending  Status = "Pending"
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusRejected Status = "Rejected"
)

// AttemptStatus is the recorded outcome of a single crawl attempt.
type AttemptStatus string

// Attempt outcomes persisted in the attempt log.
const (
	AttemptSuccess AttemptStatus = "Success"
	AttemptFailed  AttemptStatus = "Failed"
)

// RequestStatus is the lifecycle state of a user collection request.
type RequestStatus string

// User request status values.
const (
	RequestPending  RequestStatus = "Pending"
	RequestComplete RequestStatus = "Complete"
)

// WorkKind selects which slice of the registry a work batch covers.
type WorkKind string

// Work batch kinds served by the work-list endpoint.
const (
	WorkAll     WorkKind = "all"
	WorkRetry   WorkKind = "retry"
	WorkPending WorkKind = "pending"
)

// TrackedURL is a registry row: one canonical URL with its crawl lifecycle state.
type TrackedURL struct {
	ID          int64      `json:"url_id"`
	URL         string     `json:"url"`
	Status      Status     `json:"status"`
	FailCount   int        `json:"fail_count"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`
	AddedDate   time.Time  `json:"added_date"`
}

// Product holds the identity fields captured on the first successful crawl of a URL.
// Identity fields are written once and never rewritten by later crawls.
type Product struct {
	ID       int64  `json:"product_id"`
	URLID    int64  `json:"url_id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Options  string `json:"options"`
	ImageURL string `json:"image_url"`
}

// PricePoint is one recorded price observation. (product_id, date) is unique:
// one point per product per calendar day.
type PricePoint struct {
	ProductID     int64     `json:"product_id"`
	Date          time.Time `json:"date"`
	ReleasePrice  int64     `json:"release_price"`
	EmployeePrice int64     `json:"employee_price"`
}

// Attempt is an append-only crawl log entry.
type Attempt struct {
	URLID        int64         `json:"url_id"`
	AttemptTime  time.Time     `json:"attempt_time"`
	Status       AttemptStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// UserRequest records a user's ask to start tracking a URL.
type UserRequest struct {
	ID          int64         `json:"request_id"`
	URLID       int64         `json:"url_id"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
}

// WorkItem is one entry of a work batch handed to the crawl worker.
type WorkItem struct {
	URLID int64  `json:"url_id"`
	URL   string `json:"url"`
}

// ProductData is the flat field record a page extractor returns for a product page.
type ProductData struct {
	ProductName   string `json:"product_name"`
	ModelName     string `json:"model_name"`
	ImageURL      string `json:"image_url"`
	Options       string `json:"options"`
	ReleasePrice  int64  `json:"release_price"`
	EmployeePrice int64  `json:"employee_price"`
}

// Complete reports whether the record carries every field the registry requires
// before a result may be ingested as a success. A zero price is treated as
// missing: an absent price field decodes to 0, and recording it would create a
// genuine-looking 0-price point.
func (d *ProductData) Complete() bool {
	if d == nil {
		return false
	}
	return d.ProductName != "" && d.ModelName != "" && d.ReleasePrice > 0 && d.EmployeePrice > 0
}

// CrawlResult is the tagged outcome variant reported for one URL of a batch.
// Status Success carries Data; Status Failed carries ErrorMessage.
type CrawlResult struct {
	URLID        int64         `json:"url_id"`
	Status       AttemptStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	Data         *ProductData  `json:"data,omitempty"`
}
