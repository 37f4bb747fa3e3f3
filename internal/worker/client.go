package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// Client talks to the tracking service's work distribution endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a Client for the given server base URL.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type workListResponse struct {
	URLs []tracker.WorkItem `json:"urls"`
}

// FetchWork retrieves the work batch for the given kind.
func (c *Client) FetchWork(ctx context.Context, kind tracker.WorkKind) ([]tracker.WorkItem, error) {
	endpoint := fmt.Sprintf("%s/work-list?type=%s", c.baseURL, url.QueryEscape(string(kind)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build work-list request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch work list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("work-list returned %s: %s", resp.Status, readBody(resp.Body))
	}

	var out workListResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode work list: %w", err)
	}
	return out.URLs, nil
}

type reportRequest struct {
	Results []tracker.CrawlResult `json:"results"`
}

// ReportResults posts a batch of crawl outcomes back to the server.
func (c *Client) ReportResults(ctx context.Context, results []tracker.CrawlResult) error {
	if len(results) == 0 {
		return nil
	}
	body, err := json.Marshal(reportRequest{Results: results})
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crawl-result", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build crawl-result request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("report results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("crawl-result returned %s: %s", resp.Status, readBody(resp.Body))
	}
	return nil
}

func readBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}
