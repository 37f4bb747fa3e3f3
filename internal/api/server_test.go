package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/config"
	"github.com/pricewatch-io/pricewatch/internal/store/memory"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

const testKey = "test-key"

type stubClock struct {
	t time.Time
}

func (c *stubClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T, authEnabled bool) (*Server, *memory.Store) {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 5},
		Auth:   config.AuthConfig{Enabled: authEnabled, APIKey: testKey},
	}
	store := memory.NewStore()
	clock := &stubClock{t: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)}
	service := tracker.NewService(store, tracker.NewValidator(nil), clock, zap.NewNop())
	return NewServer(service, cfg, zap.NewNop()), store
}

func doRequest(t *testing.T, s *Server, method, target, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestWorkListRequiresKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/work-list?type=pending", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/work-list?type=pending", "wrong", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/work-list?type=pending", testKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, []any{}, body["urls"])
}

func TestWorkEndpointsFailClosedWithoutConfiguredKey(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Server: config.ServerConfig{Port: 8080, TimeoutSeconds: 5},
	}
	store := memory.NewStore()
	clock := &stubClock{t: time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)}
	service := tracker.NewService(store, tracker.NewValidator(nil), clock, zap.NewNop())
	s := NewServer(service, cfg, zap.NewNop())

	// No configured key means no credential can ever match, including none.
	rec := doRequest(t, s, http.MethodGet, "/work-list?type=pending", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/crawl-result", "", map[string]any{"results": []any{}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWorkListUnknownKind(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/work-list?type=bogus", testKey, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCollectDataValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodPost, "/collect-data", "", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/collect-data", "", map[string]string{"url": "example.com/p/1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decodeBody(t, rec)["message"], "scheduled")
}

func TestQueryEndpointsRespectAuthToggle(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, true)

	rec := doRequest(t, s, http.MethodGet, "/url-status?url=example.com/p/1", "", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/url-status?url=example.com/p/1", testKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestURLStatusUnknownURL(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/url-status?url=example.com/p/1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "Pending", body["status"])
	require.Contains(t, body["message"], "scheduled")
}

func TestCrawlResultRoundTrip(t *testing.T) {
	t.Parallel()
	s, store := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodPost, "/collect-data", "", map[string]string{"url": "example.com/p/1"})
	require.Equal(t, http.StatusOK, rec.Code)

	u, err := store.GetURL(context.Background(), "http://example.com/p/1")
	require.NoError(t, err)

	payload := map[string]any{
		"results": []tracker.CrawlResult{{
			URLID:  u.ID,
			Status: tracker.AttemptSuccess,
			Data: &tracker.ProductData{
				ProductName:   "Galaxy Watch7",
				ModelName:     "SM-L310",
				ReleasePrice:  349000,
				EmployeePrice: 289000,
			},
		}},
	}
	rec = doRequest(t, s, http.MethodPost, "/crawl-result", testKey, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, decodeBody(t, rec)["message"], "1 applied")

	rec = doRequest(t, s, http.MethodGet,
		fmt.Sprintf("/url-data?url=%s&start_date=%s&end_date=%s", "example.com/p/1", "2026-03-14", "2026-03-14"),
		"", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	prices, ok := body["prices"].([]any)
	require.True(t, ok)
	require.Len(t, prices, 1)
	point, ok := prices[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "2026-03-14", point["date"])
	require.EqualValues(t, 349000, point["release_price"])
}

func TestCrawlResultRejectsBadJSON(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodPost, "/crawl-result", bytes.NewBufferString("{not json"))
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestURLDataValidation(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, false)

	rec := doRequest(t, s, http.MethodGet, "/url-data?url=example.com/p/1&start_date=bad&end_date=2026-03-14", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/url-data?url=example.com/p/1&start_date=2026-03-01&end_date=bad", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/url-data?url=example.com/unknown&start_date=2026-03-01&end_date=2026-03-14", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
