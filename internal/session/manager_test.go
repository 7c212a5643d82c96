package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aigrvch/visabot/internal/portal"
)

type fakeClient struct {
	signIns     int
	dashboards  int
	dash        portal.Dashboard
	page        portal.AppointmentPage
	signInErr   error
	dashErr     error
	datesFn     func(call int) ([]string, error)
	datesCalls  int
}

func (f *fakeClient) SignIn(ctx context.Context, email, password string) error {
	f.signIns++
	return f.signInErr
}

func (f *fakeClient) FetchDashboard(ctx context.Context) (portal.Dashboard, error) {
	f.dashboards++
	return f.dash, f.dashErr
}

func (f *fakeClient) FetchAppointmentPage(ctx context.Context, scheduleID string) (portal.AppointmentPage, error) {
	return f.page, nil
}

func (f *fakeClient) AvailableDates(ctx context.Context, scheduleID, facilityID string, companion *portal.CompanionConstraint) ([]string, error) {
	f.datesCalls++
	if f.datesFn != nil {
		return f.datesFn(f.datesCalls)
	}
	return nil, nil
}

func (f *fakeClient) AvailableTimes(ctx context.Context, scheduleID, facilityID, date string, companion *portal.CompanionConstraint) ([]string, error) {
	return nil, nil
}

func (f *fakeClient) Book(ctx context.Context, scheduleID string, req portal.BookingRequest) error {
	return nil
}

func TestInitResolvesScheduleAndHeld(t *testing.T) {
	held := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	fc := &fakeClient{dash: portal.Dashboard{ScheduleIDs: []string{"42"}, Appointment: held}}
	m := NewManager(fc, Credentials{Email: "a", Password: "b"}, "", nil)

	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, "42", m.ScheduleID())
	require.True(t, m.Held().Equal(held))
	require.Equal(t, 1, fc.signIns)
}

func TestInitNoScheduleIsFatal(t *testing.T) {
	fc := &fakeClient{dash: portal.Dashboard{}}
	m := NewManager(fc, Credentials{}, "", nil)

	err := m.Init(context.Background())
	require.ErrorIs(t, err, ErrNoSchedule)
}

func TestInitMultipleSchedulesNeedsChoice(t *testing.T) {
	fc := &fakeClient{dash: portal.Dashboard{ScheduleIDs: []string{"2", "1"}}}

	m := NewManager(fc, Credentials{}, "", nil)
	require.Error(t, m.Init(context.Background()))

	m = NewManager(fc, Credentials{}, "1", nil)
	require.NoError(t, m.Init(context.Background()))
	require.Equal(t, "1", m.ScheduleID())

	m = NewManager(fc, Credentials{}, "3", nil)
	require.Error(t, m.Init(context.Background()))
}

func TestDoReauthenticatesOnceOn401(t *testing.T) {
	unauthorized := &portal.StatusError{Code: http.StatusUnauthorized, URL: "/days"}
	fc := &fakeClient{
		dash: portal.Dashboard{ScheduleIDs: []string{"42"}},
		datesFn: func(call int) ([]string, error) {
			if call == 1 {
				return nil, unauthorized
			}
			return []string{"2024-03-01"}, nil
		},
	}
	m := NewManager(fc, Credentials{}, "", nil)

	dates, err := m.AvailableDates(context.Background(), "89", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"2024-03-01"}, dates)
	require.Equal(t, 2, fc.signIns, "one init plus one re-auth")
	require.Equal(t, 2, fc.datesCalls, "op retried exactly once")
}

func TestDoSecond401Propagates(t *testing.T) {
	unauthorized := &portal.StatusError{Code: http.StatusUnauthorized, URL: "/days"}
	fc := &fakeClient{
		dash: portal.Dashboard{ScheduleIDs: []string{"42"}},
		datesFn: func(call int) ([]string, error) {
			return nil, unauthorized
		},
	}
	m := NewManager(fc, Credentials{}, "", nil)

	_, err := m.AvailableDates(context.Background(), "89", nil)
	require.True(t, portal.IsUnauthorized(err))
	require.Equal(t, 2, fc.datesCalls, "no unbounded retry")
}

func TestDoOtherErrorsPropagateWithoutReauth(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeClient{
		dash: portal.Dashboard{ScheduleIDs: []string{"42"}},
		datesFn: func(call int) ([]string, error) {
			return nil, boom
		},
	}
	m := NewManager(fc, Credentials{}, "", nil)

	_, err := m.AvailableDates(context.Background(), "89", nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, fc.signIns)
	require.Equal(t, 1, fc.datesCalls)
}

func TestRefreshAppointmentUpdatesHeld(t *testing.T) {
	first := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	second := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	fc := &fakeClient{dash: portal.Dashboard{ScheduleIDs: []string{"42"}, Appointment: first}}
	m := NewManager(fc, Credentials{}, "", nil)
	require.NoError(t, m.Init(context.Background()))

	fc.dash.Appointment = second
	held, err := m.RefreshAppointment(context.Background())
	require.NoError(t, err)
	require.True(t, held.Equal(second))
	require.True(t, m.Held().Equal(second))
}
