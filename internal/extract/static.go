package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// StaticConfig controls the colly collector behind the static pass.
type StaticConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// StaticExtractor reads the product form inputs straight from the served HTML
// using a colly collector. Pages that fill the inputs client-side fail here
// with ErrFieldsMissing and are retried by the browser pass.
type StaticExtractor struct {
	cfg           StaticConfig
	baseCollector *colly.Collector
}

// NewStatic builds a StaticExtractor.
func NewStatic(cfg StaticConfig) *StaticExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &StaticExtractor{cfg: cfg, baseCollector: c}
}

// Extract implements Extractor.
func (s *StaticExtractor) Extract(ctx context.Context, url string) (tracker.ProductData, error) {
	var (
		fields   rawFields
		seen     bool
		fetchErr error
	)

	collector := s.baseCollector.Clone()
	collector.OnHTML("html", func(e *colly.HTMLElement) {
		seen = true
		fields = rawFields{
			productName:   e.ChildAttr("input"+selProductName, "value"),
			modelName:     e.ChildAttr("input"+selModelName, "value"),
			imageURL:      e.ChildAttr("input"+selImageURL, "value"),
			options:       e.ChildAttr("input"+selOptions, "value"),
			releasePrice:  e.ChildAttr("input"+selReleasePrice, "value"),
			employeePrice: e.ChildAttr("input"+selEmployeePrice, "value"),
		}
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := s.visit(ctx, collector, url); err != nil {
		return tracker.ProductData{}, err
	}
	if fetchErr != nil {
		return tracker.ProductData{}, fmt.Errorf("fetch page: %w", fetchErr)
	}
	if !seen || !fields.complete() {
		return tracker.ProductData{}, ErrFieldsMissing
	}
	return fields.toData()
}

func (s *StaticExtractor) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("static extraction canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit page: %w", err)
		}
		return nil
	}
}
