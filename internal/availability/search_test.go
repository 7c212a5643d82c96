package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aigrvch/visabot/internal/portal"
)

type fakeFeed struct {
	dates      []string
	times      map[string][]string
	timeCalls  []string
	datesErr   error
	timesErr   error
}

func (f *fakeFeed) AvailableDates(ctx context.Context) ([]string, error) {
	return f.dates, f.datesErr
}

func (f *fakeFeed) AvailableTimes(ctx context.Context, date string) ([]string, error) {
	f.timeCalls = append(f.timeCalls, date)
	if f.timesErr != nil {
		return nil, f.timesErr
	}
	return f.times[date], nil
}

type fakeCompanion struct {
	slots map[string]*portal.Slot
	err   error
}

func (f *fakeCompanion) FindCompanionSlot(ctx context.Context, primary portal.Slot) (*portal.Slot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.slots[primary.Date], nil
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSearchPicksEarliestImprovingDate(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-03-01", "2024-03-05"},
		times: map[string][]string{"2024-03-01": {"09:00"}},
	}
	w := Window{Min: day("2024-02-01")}
	held := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	cand, err := Search(context.Background(), feed, w, held, nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.Equal(t, portal.Slot{Date: "2024-03-01", Time: "09:00"}, cand.Primary)
	require.Equal(t, []string{"2024-03-01"}, feed.timeCalls, "times fetched for the first surviving date only")
}

func TestSearchStopsAtHeldDate(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-03-10", "2024-03-11"},
		times: map[string][]string{"2024-03-10": {"09:00"}},
	}
	held := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	cand, err := Search(context.Background(), feed, Window{Min: day("2024-02-01")}, held, nil)
	require.NoError(t, err)
	require.Nil(t, cand)
	require.Empty(t, feed.timeCalls, "no time lookups past the held date")
}

func TestSearchSkipsDatesAtOrBelowMinimum(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-01-15", "2024-02-01", "2024-02-20"},
		times: map[string][]string{"2024-02-20": {"08:30"}},
	}
	w := Window{Min: day("2024-02-01")}

	cand, err := Search(context.Background(), feed, w, time.Time{}, nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.Equal(t, "2024-02-20", cand.Primary.Date)
	require.Equal(t, []string{"2024-02-20"}, feed.timeCalls)
}

func TestSearchStopsPastMaximum(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-05-01", "2024-06-01"},
		times: map[string][]string{"2024-05-01": {}, "2024-06-01": {"09:00"}},
	}
	w := Window{Min: day("2024-02-01"), Max: day("2024-05-15")}

	cand, err := Search(context.Background(), feed, w, time.Time{}, nil)
	require.NoError(t, err)
	require.Nil(t, cand)
	require.Equal(t, []string{"2024-05-01"}, feed.timeCalls)
}

func TestSearchContinuesPastEmptyTimeLists(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-03-01", "2024-03-02"},
		times: map[string][]string{
			"2024-03-01": {},
			"2024-03-02": {"10:00", "11:00"},
		},
	}

	cand, err := Search(context.Background(), feed, Window{Min: day("2024-02-01")}, time.Time{}, nil)
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.Equal(t, portal.Slot{Date: "2024-03-02", Time: "10:00"}, cand.Primary)
}

func TestSearchContinuesWhenCompanionUnavailable(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-03-01", "2024-03-02"},
		times: map[string][]string{
			"2024-03-01": {"09:00"},
			"2024-03-02": {"10:00"},
		},
	}
	companion := &fakeCompanion{slots: map[string]*portal.Slot{
		"2024-03-02": {Date: "2024-02-26", Time: "10:00"},
	}}

	cand, err := Search(context.Background(), feed, Window{Min: day("2024-02-01")}, time.Time{}, companion)
	require.NoError(t, err)
	require.NotNil(t, cand)
	require.Equal(t, "2024-03-02", cand.Primary.Date)
	require.NotNil(t, cand.Companion)
	require.Equal(t, "2024-02-26", cand.Companion.Date)
}

func TestSearchCompanionErrorPropagates(t *testing.T) {
	feed := &fakeFeed{
		dates: []string{"2024-03-01"},
		times: map[string][]string{"2024-03-01": {"09:00"}},
	}
	companion := &fakeCompanion{err: errors.New("asc feed down")}

	_, err := Search(context.Background(), feed, Window{Min: day("2024-02-01")}, time.Time{}, companion)
	require.Error(t, err)
}

func TestSearchFeedErrorsPropagate(t *testing.T) {
	_, err := Search(context.Background(), &fakeFeed{datesErr: errors.New("boom")}, Window{}, time.Time{}, nil)
	require.Error(t, err)

	feed := &fakeFeed{dates: []string{"2024-03-01"}, timesErr: errors.New("boom")}
	_, err = Search(context.Background(), feed, Window{Min: day("2024-02-01")}, time.Time{}, nil)
	require.Error(t, err)
}

func TestWindowAccepts(t *testing.T) {
	w := Window{Min: day("2024-02-01"), Max: day("2024-05-01")}
	require.False(t, w.Accepts(day("2024-02-01")), "minimum itself is excluded")
	require.True(t, w.Accepts(day("2024-02-02")))
	require.True(t, w.Accepts(day("2024-05-01")), "maximum itself is included")
	require.False(t, w.Accepts(day("2024-05-02")))

	open := Window{Min: day("2024-02-01")}
	require.True(t, open.Accepts(day("2030-01-01")))
}

func TestWindowSatisfied(t *testing.T) {
	w := Window{Min: day("2024-02-20")}
	require.True(t, w.Satisfied(day("2024-02-15")))
	require.True(t, w.Satisfied(day("2024-02-20")))
	require.True(t, w.Satisfied(time.Date(2024, 2, 20, 14, 30, 0, 0, time.UTC)),
		"same-day held appointment satisfies regardless of time")
	require.False(t, w.Satisfied(day("2024-02-21")))
	require.False(t, w.Satisfied(time.Time{}), "no held appointment cannot satisfy the window")
}
