// Package worker runs the scheduled crawl loop: it fetches work batches from
// the tracking service, extracts product data from each page, and reports the
// outcomes back.
package worker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/extract"
	"github.com/pricewatch-io/pricewatch/internal/metrics"
	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// WorkSource is the worker's view of the tracking service.
type WorkSource interface {
	FetchWork(ctx context.Context, kind tracker.WorkKind) ([]tracker.WorkItem, error)
	ReportResults(ctx context.Context, results []tracker.CrawlResult) error
}

// Scheduler drives crawl batches on a fixed daily timetable. At most one
// batch runs at a time; a slot that fires while a batch is still in flight
// is skipped.
type Scheduler struct {
	source     WorkSource
	extractor  extract.Extractor
	urlTimeout time.Duration
	logger     *zap.Logger

	cron    *cron.Cron
	running sync.Mutex
}

// NewScheduler builds a Scheduler.
func NewScheduler(source WorkSource, extractor extract.Extractor, urlTimeout time.Duration, logger *zap.Logger) *Scheduler {
	if urlTimeout <= 0 {
		urlTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		source:     source,
		extractor:  extractor,
		urlTimeout: urlTimeout,
		logger:     logger,
	}
}

// Start registers the daily slots and starts the cron loop. The first slot
// runs the full active set; every later slot runs retries. All slots pick up
// pending URLs. Times are HH:MM, validated upstream by config.
func (s *Scheduler) Start(ctx context.Context, times []string) error {
	c := cron.New()
	for i, t := range times {
		hhmm := strings.SplitN(t, ":", 2)
		if len(hhmm) != 2 {
			return fmt.Errorf("schedule time %q is not HH:MM", t)
		}
		spec := fmt.Sprintf("%s %s * * *", hhmm[1], hhmm[0])

		kinds := []tracker.WorkKind{tracker.WorkRetry, tracker.WorkPending}
		if i == 0 {
			kinds = []tracker.WorkKind{tracker.WorkAll, tracker.WorkPending}
		}

		slotKinds := kinds
		if _, err := c.AddFunc(spec, func() {
			s.RunBatch(ctx, slotKinds...)
		}); err != nil {
			return fmt.Errorf("register slot %q: %w", t, err)
		}
		s.logger.Info("crawl slot registered",
			zap.String("time", t),
			zap.Any("kinds", slotKinds),
		)
	}

	s.cron = c
	c.Start()
	return nil
}

// Stop halts the cron loop and waits for an in-flight batch to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.running.Lock()
	s.running.Unlock()
}

// RunBatch fetches and crawls the given work kinds in order. If another batch
// is already running the call is dropped.
func (s *Scheduler) RunBatch(ctx context.Context, kinds ...tracker.WorkKind) {
	if !s.running.TryLock() {
		s.logger.Warn("batch already in flight, skipping slot")
		return
	}
	defer s.running.Unlock()

	for _, kind := range kinds {
		if err := s.runKind(ctx, kind); err != nil {
			s.logger.Error("batch failed",
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			metrics.ObserveBatch(string(kind), "error")
			continue
		}
		metrics.ObserveBatch(string(kind), "ok")
	}
}

func (s *Scheduler) runKind(ctx context.Context, kind tracker.WorkKind) error {
	items, err := s.source.FetchWork(ctx, kind)
	if err != nil {
		return fmt.Errorf("fetch work: %w", err)
	}
	if len(items) == 0 {
		s.logger.Info("no work for kind", zap.String("kind", string(kind)))
		return nil
	}
	s.logger.Info("batch started",
		zap.String("kind", string(kind)),
		zap.Int("urls", len(items)),
	)

	results := make([]tracker.CrawlResult, 0, len(items))
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		result := s.crawlOne(ctx, item)
		metrics.ObserveCrawlResult(string(result.Status))
		results = append(results, result)
	}

	if err := s.source.ReportResults(ctx, results); err != nil {
		return fmt.Errorf("report results: %w", err)
	}
	s.logger.Info("batch reported",
		zap.String("kind", string(kind)),
		zap.Int("results", len(results)),
	)
	return nil
}

func (s *Scheduler) crawlOne(ctx context.Context, item tracker.WorkItem) tracker.CrawlResult {
	urlCtx, cancel := context.WithTimeout(ctx, s.urlTimeout)
	defer cancel()

	data, err := s.extractor.Extract(urlCtx, item.URL)
	if err != nil {
		s.logger.Warn("extraction failed",
			zap.Int64("url_id", item.URLID),
			zap.String("url", item.URL),
			zap.Error(err),
		)
		return tracker.CrawlResult{
			URLID:        item.URLID,
			Status:       tracker.AttemptFailed,
			ErrorMessage: err.Error(),
		}
	}
	return tracker.CrawlResult{
		URLID:  item.URLID,
		Status: tracker.AttemptSuccess,
		Data:   &data,
	}
}
