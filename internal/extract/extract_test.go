package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

func TestParsePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want int64
	}{
		{"1490000", 1490000},
		{"1,490,000", 1490000},
		{" 349000 ", 349000},
		{"0", 0},
	}
	for _, tc := range cases {
		got, err := parsePrice(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		require.Equal(t, tc.want, got)
	}

	for _, in := range []string{"", "abc", "12.5won", "-100"} {
		_, err := parsePrice(in)
		require.Error(t, err, "input %q", in)
	}
}

func TestRawFieldsComplete(t *testing.T) {
	t.Parallel()

	full := rawFields{productName: "n", modelName: "m", releasePrice: "1", employeePrice: "2"}
	require.True(t, full.complete())

	// Options and image are optional.
	require.False(t, rawFields{modelName: "m", releasePrice: "1", employeePrice: "2"}.complete())
	require.False(t, rawFields{productName: "n", releasePrice: "1", employeePrice: "2"}.complete())
	require.False(t, rawFields{productName: "n", modelName: "m", employeePrice: "2"}.complete())
	require.False(t, rawFields{productName: "n", modelName: "m", releasePrice: "1"}.complete())
}

type fakeExtractor struct {
	data  tracker.ProductData
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, string) (tracker.ProductData, error) {
	f.calls++
	return f.data, f.err
}

func TestPageExtractorStaticFirst(t *testing.T) {
	t.Parallel()

	static := &fakeExtractor{data: tracker.ProductData{ProductName: "static"}}
	browser := &fakeExtractor{data: tracker.ProductData{ProductName: "browser"}}
	p := NewPageExtractor(static, browser, zap.NewNop())

	data, err := p.Extract(context.Background(), "http://example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, "static", data.ProductName)
	require.Equal(t, 1, static.calls)
	require.Zero(t, browser.calls)
}

func TestPageExtractorPromotesToBrowser(t *testing.T) {
	t.Parallel()

	static := &fakeExtractor{err: ErrFieldsMissing}
	browser := &fakeExtractor{data: tracker.ProductData{ProductName: "browser"}}
	p := NewPageExtractor(static, browser, zap.NewNop())

	data, err := p.Extract(context.Background(), "http://example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, "browser", data.ProductName)
	require.Equal(t, 1, static.calls)
	require.Equal(t, 1, browser.calls)
}

func TestPageExtractorWithoutBrowserKeepsStaticError(t *testing.T) {
	t.Parallel()

	static := &fakeExtractor{err: ErrFieldsMissing}
	p := NewPageExtractor(static, nil, zap.NewNop())

	_, err := p.Extract(context.Background(), "http://example.com/p/1")
	require.True(t, errors.Is(err, ErrFieldsMissing))
}
