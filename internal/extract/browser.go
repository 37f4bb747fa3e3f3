package extract

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// BrowserConfig controls the headless browser pass.
type BrowserConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// BrowserExtractor reads the product form inputs after JavaScript has run,
// via chromedp. One exec allocator is shared for the extractor's lifetime, so
// a worker process drives a single browser session across the whole batch.
type BrowserExtractor struct {
	cfg         BrowserConfig
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// NewBrowser creates a headless extractor backed by chromedp.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *BrowserExtractor {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &BrowserExtractor{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}
}

// Close releases the shared browser session.
func (b *BrowserExtractor) Close() {
	b.allocCancel()
}

// Warmup navigates the session to a landing URL before the first batch.
// Failure is logged and tolerated.
func (b *BrowserExtractor) Warmup(url string) {
	if url == "" {
		return
	}
	taskCtx, cancel := chromedp.NewContext(b.allocator)
	defer cancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, b.cfg.NavigationTimeout)
	defer timeoutCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		b.logger.Warn("browser warmup failed", zap.String("url", url), zap.Error(err))
		return
	}
	b.logger.Info("browser session warmed up", zap.String("url", url))
}

// pageFields mirrors the JS snapshot of the form inputs.
type pageFields struct {
	ProductName   string `json:"productName"`
	ModelName     string `json:"modelName"`
	ImageURL      string `json:"imageUrl"`
	Options       string `json:"options"`
	ReleasePrice  string `json:"releasePrice"`
	EmployeePrice string `json:"employeePrice"`
}

const readFieldsJS = `(() => {
	const v = (sel) => { const el = document.querySelector(sel); return el ? el.value : ""; };
	return {
		productName:   v("` + selProductName + `"),
		modelName:     v("` + selModelName + `"),
		imageUrl:      v("` + selImageURL + `"),
		options:       v("` + selOptions + `"),
		releasePrice:  v("` + selReleasePrice + `"),
		employeePrice: v("` + selEmployeePrice + `")
	};
})()`

// Extract implements Extractor.
func (b *BrowserExtractor) Extract(ctx context.Context, url string) (tracker.ProductData, error) {
	taskCtx, cancel := chromedp.NewContext(b.allocator)
	defer cancel()

	deadline := b.cfg.NavigationTimeout
	if d, ok := ctx.Deadline(); ok {
		if remaining := time.Until(d); remaining < deadline {
			deadline = remaining
		}
	}
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, deadline)
	defer timeoutCancel()

	var fields pageFields
	actions := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": "ko-KR,ko;q=0.9,en;q=0.8",
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.Evaluate(readFieldsJS, &fields),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return tracker.ProductData{}, fmt.Errorf("browser extraction: %w", err)
	}

	raw := rawFields{
		productName:   fields.ProductName,
		modelName:     fields.ModelName,
		imageURL:      fields.ImageURL,
		options:       fields.Options,
		releasePrice:  fields.ReleasePrice,
		employeePrice: fields.EmployeePrice,
	}
	if !raw.complete() {
		return tracker.ProductData{}, ErrFieldsMissing
	}
	return raw.toData()
}
