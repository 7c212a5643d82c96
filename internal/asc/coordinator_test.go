package asc

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/portal"
)

type fakeFeed struct {
	dates          []string
	times          map[string][]string
	datesErr       error
	timesErr       map[string]error
	datesCalls     int
	lastConstraint *portal.CompanionConstraint
}

func (f *fakeFeed) CompanionDates(ctx context.Context, constraint *portal.CompanionConstraint) ([]string, error) {
	f.datesCalls++
	f.lastConstraint = constraint
	return f.dates, f.datesErr
}

func (f *fakeFeed) CompanionTimes(ctx context.Context, date string, constraint *portal.CompanionConstraint) ([]string, error) {
	if err := f.timesErr[date]; err != nil {
		return nil, err
	}
	return f.times[date], nil
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}

func newCoordinator(t *testing.T, feed Feed, window availability.Window) (*Coordinator, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(rdb, "89", "90", nil)
	return NewCoordinator(feed, cache, window, "89", nil), cache
}

func TestFindCompanionSlotCacheHit(t *testing.T) {
	ctx := context.Background()
	feed := &fakeFeed{}
	co, cache := newCoordinator(t, feed, availability.Window{})

	require.NoError(t, cache.Replace(ctx, map[string][]string{
		"2024-02-26": {"10:00", "11:00"},
	}))

	slot, err := co.FindCompanionSlot(ctx, portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, "2024-02-26", slot.Date)
	require.Contains(t, []string{"10:00", "11:00"}, slot.Time)
	require.Zero(t, feed.datesCalls, "cache hit must not probe the feed")
}

func TestFindCompanionSlotCacheOutsideWindowIsMiss(t *testing.T) {
	ctx := context.Background()
	feed := &fakeFeed{
		dates: []string{"2024-02-25"},
		times: map[string][]string{"2024-02-25": {"08:00"}},
	}
	co, cache := newCoordinator(t, feed, availability.Window{})

	// Cached date is 8 days before the primary, outside [primary-7d, primary).
	require.NoError(t, cache.Replace(ctx, map[string][]string{
		"2024-02-22": {"10:00"},
	}))

	slot, err := co.FindCompanionSlot(ctx, portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, "2024-02-25", slot.Date)
	require.Equal(t, 1, feed.datesCalls)
}

func TestFindCompanionSlotFeedConstrainedByPrimary(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-02-26"},
		times: map[string][]string{"2024-02-26": {"10:00"}},
	}
	co, _ := newCoordinator(t, feed, availability.Window{})

	slot, err := co.FindCompanionSlot(context.Background(), portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.NotNil(t, feed.lastConstraint)
	require.Equal(t, "89", feed.lastConstraint.FacilityID)
	require.Equal(t, "2024-03-01", feed.lastConstraint.Date)
	require.Equal(t, "09:00", feed.lastConstraint.Time)
}

func TestFindCompanionSlotWindowInvariant(t *testing.T) {
	feed := &fakeFeed{
		// Dates on and after the primary, plus one too early, must be skipped.
		dates: []string{"2024-02-20", "2024-02-23", "2024-03-01", "2024-03-02"},
		times: map[string][]string{
			"2024-02-20": {"08:00"},
			"2024-02-23": {"09:00"},
			"2024-03-01": {"10:00"},
			"2024-03-02": {"11:00"},
		},
	}
	co, _ := newCoordinator(t, feed, availability.Window{})

	slot, err := co.FindCompanionSlot(context.Background(), portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	require.NotNil(t, slot)
	require.Equal(t, "2024-02-23", slot.Date)
	require.True(t, slot.Date >= "2024-02-23" && slot.Date < "2024-03-01")
}

func TestFindCompanionSlotNoneAvailable(t *testing.T) {
	feed := &fakeFeed{dates: []string{"2024-03-05"}}
	co, _ := newCoordinator(t, feed, availability.Window{})

	slot, err := co.FindCompanionSlot(context.Background(), portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.NoError(t, err)
	require.Nil(t, slot)
}

func TestFindCompanionSlotFeedErrorPropagates(t *testing.T) {
	feed := &fakeFeed{datesErr: errors.New("feed down")}
	co, _ := newCoordinator(t, feed, availability.Window{})

	_, err := co.FindCompanionSlot(context.Background(), portal.Slot{Date: "2024-03-01", Time: "09:00"})
	require.Error(t, err)
}

func TestRefreshCacheFiltersWindowAndSkipsFailures(t *testing.T) {
	ctx := context.Background()
	window := availability.Window{
		Min: mustDay(t, "2024-02-20"),
		Max: mustDay(t, "2024-03-10"),
	}
	feed := &fakeFeed{
		dates: []string{"2024-02-15", "2024-02-20", "2024-02-26", "2024-03-01", "2024-03-15"},
		times: map[string][]string{
			"2024-02-20": {"08:00"},
			"2024-02-26": {"10:00", "11:00"},
		},
		timesErr: map[string]error{"2024-03-01": errors.New("flaky")},
	}
	co, cache := newCoordinator(t, feed, window)

	require.NoError(t, co.RefreshCache(ctx))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		"2024-02-20": {"08:00"},
		"2024-02-26": {"10:00", "11:00"},
	}, got, "window minimum itself is cacheable; out-of-window and failing dates are not")
	require.Nil(t, feed.lastConstraint, "cache refresh queries the full feed")
}

func TestRefreshCacheFeedErrorPropagates(t *testing.T) {
	feed := &fakeFeed{datesErr: errors.New("down")}
	co, _ := newCoordinator(t, feed, availability.Window{})
	require.Error(t, co.RefreshCache(context.Background()))
}
