package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

type fakeSource struct {
	mu       sync.Mutex
	work     map[tracker.WorkKind][]tracker.WorkItem
	fetchErr error
	reports  [][]tracker.CrawlResult
}

func (f *fakeSource) FetchWork(_ context.Context, kind tracker.WorkKind) ([]tracker.WorkItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.work[kind], nil
}

func (f *fakeSource) ReportResults(_ context.Context, results []tracker.CrawlResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, results)
	return nil
}

func (f *fakeSource) reported() [][]tracker.CrawlResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reports
}

type fakeExtractor struct {
	data    tracker.ProductData
	failURL string
	block   chan struct{}
}

func (f *fakeExtractor) Extract(_ context.Context, url string) (tracker.ProductData, error) {
	if f.block != nil {
		<-f.block
	}
	if url == f.failURL {
		return tracker.ProductData{}, errors.New("fields missing")
	}
	return f.data, nil
}

var batchData = tracker.ProductData{
	ProductName:   "Neo QLED 8K",
	ModelName:     "KQ75QND900F",
	ReleasePrice:  8360000,
	EmployeePrice: 6590000,
}

func TestRunBatchReportsMixedResults(t *testing.T) {
	t.Parallel()

	source := &fakeSource{work: map[tracker.WorkKind][]tracker.WorkItem{
		tracker.WorkAll: {
			{URLID: 1, URL: "http://example.com/p/1"},
			{URLID: 2, URL: "http://example.com/p/2"},
		},
	}}
	extractor := &fakeExtractor{data: batchData, failURL: "http://example.com/p/2"}
	s := NewScheduler(source, extractor, time.Second, zap.NewNop())

	s.RunBatch(context.Background(), tracker.WorkAll)

	reports := source.reported()
	require.Len(t, reports, 1)
	require.Len(t, reports[0], 2)

	require.Equal(t, int64(1), reports[0][0].URLID)
	require.Equal(t, tracker.AttemptSuccess, reports[0][0].Status)
	require.NotNil(t, reports[0][0].Data)
	require.Equal(t, "Neo QLED 8K", reports[0][0].Data.ProductName)

	require.Equal(t, int64(2), reports[0][1].URLID)
	require.Equal(t, tracker.AttemptFailed, reports[0][1].Status)
	require.Contains(t, reports[0][1].ErrorMessage, "fields missing")
	require.Nil(t, reports[0][1].Data)
}

func TestRunBatchProcessesKindsInOrder(t *testing.T) {
	t.Parallel()

	source := &fakeSource{work: map[tracker.WorkKind][]tracker.WorkItem{
		tracker.WorkRetry:   {{URLID: 1, URL: "http://example.com/p/1"}},
		tracker.WorkPending: {{URLID: 2, URL: "http://example.com/p/2"}},
	}}
	s := NewScheduler(source, &fakeExtractor{data: batchData}, time.Second, zap.NewNop())

	s.RunBatch(context.Background(), tracker.WorkRetry, tracker.WorkPending)

	reports := source.reported()
	require.Len(t, reports, 2)
	require.Equal(t, int64(1), reports[0][0].URLID)
	require.Equal(t, int64(2), reports[1][0].URLID)
}

func TestRunBatchSkipsEmptyKind(t *testing.T) {
	t.Parallel()

	source := &fakeSource{work: map[tracker.WorkKind][]tracker.WorkItem{}}
	s := NewScheduler(source, &fakeExtractor{data: batchData}, time.Second, zap.NewNop())

	s.RunBatch(context.Background(), tracker.WorkAll)
	require.Empty(t, source.reported())
}

func TestRunBatchToleratesFetchFailure(t *testing.T) {
	t.Parallel()

	source := &fakeSource{fetchErr: errors.New("server down")}
	s := NewScheduler(source, &fakeExtractor{data: batchData}, time.Second, zap.NewNop())

	s.RunBatch(context.Background(), tracker.WorkAll)
	require.Empty(t, source.reported())
}

func TestRunBatchSingleFlight(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	source := &fakeSource{work: map[tracker.WorkKind][]tracker.WorkItem{
		tracker.WorkAll: {{URLID: 1, URL: "http://example.com/p/1"}},
	}}
	s := NewScheduler(source, &fakeExtractor{data: batchData, block: block}, time.Second, zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunBatch(context.Background(), tracker.WorkAll)
	}()

	// Wait until the first batch holds the lock, then try to start another.
	require.Eventually(t, func() bool {
		if s.running.TryLock() {
			s.running.Unlock()
			return false
		}
		return true
	}, time.Second, 5*time.Millisecond)

	s.RunBatch(context.Background(), tracker.WorkAll)
	close(block)
	wg.Wait()

	require.Len(t, source.reported(), 1)
}

func TestRunBatchStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	source := &fakeSource{work: map[tracker.WorkKind][]tracker.WorkItem{
		tracker.WorkAll: {
			{URLID: 1, URL: "http://example.com/p/1"},
			{URLID: 2, URL: "http://example.com/p/2"},
		},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(source, &fakeExtractor{data: batchData}, time.Second, zap.NewNop())
	s.RunBatch(ctx, tracker.WorkAll)

	reports := source.reported()
	require.Len(t, reports, 1)
	require.Empty(t, reports[0])
}
