// Package extract turns a product page into the flat field record the
// registry ingests. A fast static pass reads the hidden form inputs from the
// served HTML; pages that populate them with JavaScript are promoted to a
// headless browser pass.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

// ErrFieldsMissing reports a reachable page that lacks the expected fields.
var ErrFieldsMissing = errors.New("required fields missing from page")

// Field selectors of the product form inputs.
const (
	selProductName   = "#goodsNm"
	selModelName     = "#mdlCode"
	selImageURL      = "#imgPath"
	selOptions       = "#ga4OptionString"
	selReleasePrice  = "#originalSumPrice"
	selEmployeePrice = "#beforeBenefitPrice"
)

// Extractor reads one product page and returns its field record, or an error
// describing why the fields could not be read.
type Extractor interface {
	Extract(ctx context.Context, url string) (tracker.ProductData, error)
}

// rawFields holds the unparsed input values scraped from a page.
type rawFields struct {
	productName   string
	modelName     string
	imageURL      string
	options       string
	releasePrice  string
	employeePrice string
}

func (f rawFields) complete() bool {
	return f.productName != "" && f.modelName != "" && f.releasePrice != "" && f.employeePrice != ""
}

// toData parses the raw field strings into a ProductData record.
func (f rawFields) toData() (tracker.ProductData, error) {
	release, err := parsePrice(f.releasePrice)
	if err != nil {
		return tracker.ProductData{}, fmt.Errorf("release price: %w", err)
	}
	employee, err := parsePrice(f.employeePrice)
	if err != nil {
		return tracker.ProductData{}, fmt.Errorf("employee price: %w", err)
	}
	return tracker.ProductData{
		ProductName:   f.productName,
		ModelName:     f.modelName,
		ImageURL:      f.imageURL,
		Options:       f.options,
		ReleasePrice:  release,
		EmployeePrice: employee,
	}, nil
}

func parsePrice(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	v, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative price: %q", s)
	}
	return v, nil
}

// PageExtractor runs the static pass first and promotes to the browser pass
// when the static HTML lacks the fields. A nil browser disables promotion.
type PageExtractor struct {
	static  Extractor
	browser Extractor
	logger  *zap.Logger
}

// NewPageExtractor combines the two passes.
func NewPageExtractor(static, browser Extractor, logger *zap.Logger) *PageExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageExtractor{static: static, browser: browser, logger: logger}
}

// Extract implements Extractor.
func (p *PageExtractor) Extract(ctx context.Context, url string) (tracker.ProductData, error) {
	data, err := p.static.Extract(ctx, url)
	if err == nil {
		return data, nil
	}
	if p.browser == nil {
		return tracker.ProductData{}, err
	}
	p.logger.Debug("static extraction failed, promoting to browser",
		zap.String("url", url),
		zap.Error(err),
	)
	return p.browser.Extract(ctx, url)
}
