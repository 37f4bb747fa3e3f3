package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pricewatch-io/pricewatch/internal/tracker"
)

func TestTrackURL(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

	u, created, err := store.TrackURL(ctx, "http://example.com/p/1", now)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, tracker.StatusPending, u.Status)
	require.Len(t, store.Requests(u.ID), 1)

	again, created, err := store.TrackURL(ctx, "http://example.com/p/1", now.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, u.ID, again.ID)
	require.Len(t, store.Requests(u.ID), 1)
}

func TestApplyResultUnknownURL(t *testing.T) {
	t.Parallel()
	store := NewStore()

	err := store.ApplyResult(context.Background(), 42, func(tracker.TrackedURL) (tracker.Transition, error) {
		t.Fatal("apply must not run for an unknown url")
		return tracker.Transition{}, nil
	})
	require.ErrorIs(t, err, tracker.ErrNotFound)
}

func TestApplyResultPropagatesApplyError(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	u, _, err := store.TrackURL(ctx, "http://example.com/p/1", now)
	require.NoError(t, err)

	err = store.ApplyResult(ctx, u.ID, func(tracker.TrackedURL) (tracker.Transition, error) {
		return tracker.Transition{}, tracker.ErrNoTransition
	})
	require.ErrorIs(t, err, tracker.ErrNoTransition)

	// Nothing was persisted for the failed application.
	after, err := store.GetURL(ctx, "http://example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, tracker.StatusPending, after.Status)
	require.Empty(t, store.Attempts(u.ID))
}

func TestApplyResultPersistsTransition(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)

	u, _, err := store.TrackURL(ctx, "http://example.com/p/1", now)
	require.NoError(t, err)

	data := tracker.ProductData{
		ProductName:   "Odyssey OLED G9",
		ModelName:     "LS49CG954SKXKR",
		ReleasePrice:  2290000,
		EmployeePrice: 1790000,
	}
	transition := tracker.Transition{
		Status:      tracker.StatusActive,
		LastAttempt: now,
		Attempt:     tracker.Attempt{URLID: u.ID, AttemptTime: now, Status: tracker.AttemptSuccess},
		Product:     &data,
		Price: &tracker.PriceUpdate{
			Date:          now.Truncate(24 * time.Hour),
			ReleasePrice:  data.ReleasePrice,
			EmployeePrice: data.EmployeePrice,
		},
		CompleteRequest: true,
	}
	apply := func(tracker.TrackedURL) (tracker.Transition, error) { return transition, nil }

	require.NoError(t, store.ApplyResult(ctx, u.ID, apply))

	after, err := store.GetURL(ctx, "http://example.com/p/1")
	require.NoError(t, err)
	require.Equal(t, tracker.StatusActive, after.Status)
	require.NotNil(t, after.LastAttempt)

	product, err := store.GetProduct(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Odyssey OLED G9", product.Name)

	prices, err := store.ListPrices(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, prices, 1)

	requests := store.Requests(u.ID)
	require.Len(t, requests, 1)
	require.Equal(t, tracker.RequestComplete, requests[0].Status)

	// Replaying the same day's transition inserts nothing new.
	require.NoError(t, store.ApplyResult(ctx, u.ID, apply))
	prices, err = store.ListPrices(ctx, product.ID)
	require.NoError(t, err)
	require.Len(t, prices, 1)
}

func TestRecordRejectedReusesExistingRow(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordRejected(ctx, "http://bad.net/p", "host not allowed: bad.net", now))
	u, err := store.GetURL(ctx, "http://bad.net/p")
	require.NoError(t, err)
	require.Equal(t, tracker.StatusRejected, u.Status)

	require.NoError(t, store.RecordRejected(ctx, "http://bad.net/p", "host not allowed: bad.net", now))
	second, err := store.GetURL(ctx, "http://bad.net/p")
	require.NoError(t, err)
	require.Equal(t, u.ID, second.ID)
	require.Len(t, store.Attempts(u.ID), 2)
}

func TestListPricesRangeBounds(t *testing.T) {
	t.Parallel()
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	u, _, err := store.TrackURL(ctx, "http://example.com/p/1", base)
	require.NoError(t, err)

	data := tracker.ProductData{ProductName: "n", ModelName: "m", ReleasePrice: 1, EmployeePrice: 1}
	for day := 0; day < 4; day++ {
		ts := base.AddDate(0, 0, day)
		err := store.ApplyResult(ctx, u.ID, func(tracker.TrackedURL) (tracker.Transition, error) {
			return tracker.Transition{
				Status:      tracker.StatusActive,
				LastAttempt: ts,
				Attempt:     tracker.Attempt{URLID: u.ID, AttemptTime: ts, Status: tracker.AttemptSuccess},
				Product:     &data,
				Price:       &tracker.PriceUpdate{Date: ts, ReleasePrice: 1, EmployeePrice: 1},
			}, nil
		})
		require.NoError(t, err)
	}

	product, err := store.GetProduct(ctx, u.ID)
	require.NoError(t, err)

	prices, err := store.ListPricesRange(ctx, product.ID, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	require.Equal(t, base.AddDate(0, 0, 1), prices[0].Date)
	require.Equal(t, base.AddDate(0, 0, 2), prices[1].Date)
}

func TestGetProductNotFound(t *testing.T) {
	t.Parallel()
	store := NewStore()

	_, err := store.GetProduct(context.Background(), 99)
	require.True(t, errors.Is(err, tracker.ErrNotFound))
}
