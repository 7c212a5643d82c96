// Package session owns the portal session lifecycle for one network path:
// sign in, schedule resolution, CSRF refresh, and the single bounded retry
// when the portal reports the session expired.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aigrvch/visabot/internal/portal"
	"github.com/aigrvch/visabot/pkg/logging"
)

// ErrNoSchedule means the account has no manageable appointment record.
// Retrying cannot change account state, so callers must treat it as fatal.
var ErrNoSchedule = errors.New("session: no appointment schedule found on dashboard")

// Credentials are the operator's portal credentials, read-only to this package.
type Credentials struct {
	Email    string
	Password string
}

// Client is the slice of the portal client the manager drives.
type Client interface {
	SignIn(ctx context.Context, email, password string) error
	FetchDashboard(ctx context.Context) (portal.Dashboard, error)
	FetchAppointmentPage(ctx context.Context, scheduleID string) (portal.AppointmentPage, error)
	AvailableDates(ctx context.Context, scheduleID, facilityID string, companion *portal.CompanionConstraint) ([]string, error)
	AvailableTimes(ctx context.Context, scheduleID, facilityID, date string, companion *portal.CompanionConstraint) ([]string, error)
	Book(ctx context.Context, scheduleID string, req portal.BookingRequest) error
}

// Manager drives one portal client. It re-creates the whole session (never
// patches it) whenever the portal answers 401, and keeps the held
// appointment state fresh.
type Manager struct {
	client Client
	creds  Credentials
	logger *logging.Logger

	// wantScheduleID pins resolution when the account has several records.
	wantScheduleID string

	scheduleID  string
	held        time.Time
	page        portal.AppointmentPage
	initialized bool

	onAuth func()
}

// OnAuth registers a hook invoked after every successful sign-in, used for
// authentication counters. Must be set before the first operation.
func (m *Manager) OnAuth(fn func()) {
	m.onAuth = fn
}

// NewManager creates a session manager around a portal client.
func NewManager(client Client, creds Credentials, wantScheduleID string, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		client:         client,
		creds:          creds,
		wantScheduleID: wantScheduleID,
		logger:         logger,
	}
}

// Init establishes a fresh session: sign in, resolve the schedule identity
// and held appointment from the dashboard, then load the appointment page to
// pick up the page-scoped CSRF token the next mutating request needs.
func (m *Manager) Init(ctx context.Context) error {
	m.initialized = false

	if err := m.client.SignIn(ctx, m.creds.Email, m.creds.Password); err != nil {
		return fmt.Errorf("session: authenticate: %w", err)
	}

	dash, err := m.client.FetchDashboard(ctx)
	if err != nil {
		return fmt.Errorf("session: resolve schedule: %w", err)
	}
	scheduleID, err := pickSchedule(dash.ScheduleIDs, m.wantScheduleID)
	if err != nil {
		return err
	}
	m.scheduleID = scheduleID
	m.held = dash.Appointment

	page, err := m.client.FetchAppointmentPage(ctx, m.scheduleID)
	if err != nil {
		return fmt.Errorf("session: refresh token: %w", err)
	}
	m.page = page

	m.initialized = true
	if m.onAuth != nil {
		m.onAuth()
	}
	m.logger.Info("session established",
		"schedule", m.scheduleID,
		"held", formatHeld(m.held))
	return nil
}

func pickSchedule(ids []string, want string) (string, error) {
	if len(ids) == 0 {
		return "", ErrNoSchedule
	}
	if want == "" {
		if len(ids) == 1 {
			return ids[0], nil
		}
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		return "", fmt.Errorf("session: account has %d schedules %v, set SCHEDULE_ID to choose one", len(ids), sorted)
	}
	for _, id := range ids {
		if id == want {
			return id, nil
		}
	}
	return "", fmt.Errorf("session: configured schedule %s not found on dashboard (have %v)", want, ids)
}

// Do runs op inside the retry policy: ensure a session exists, and on a 401
// re-create it once and retry op exactly once. Every other failure
// propagates unmodified.
func (m *Manager) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if !m.initialized {
		if err := m.Init(ctx); err != nil {
			return err
		}
	}

	err := op(ctx)
	if !portal.IsUnauthorized(err) {
		return err
	}

	m.logger.Info("session expired, re-authenticating", "schedule", m.scheduleID)
	if err := m.Init(ctx); err != nil {
		return err
	}
	return op(ctx)
}

// ScheduleID returns the resolved schedule identity. Empty before Init.
func (m *Manager) ScheduleID() string {
	return m.scheduleID
}

// Held returns the currently held appointment, zero when none is booked.
func (m *Manager) Held() time.Time {
	return m.held
}

// Facilities returns the facility choices parsed from the appointment page.
func (m *Manager) Facilities() map[string]string {
	return m.page.Facilities
}

// ASCFacilities returns the companion facility choices, nil when the account
// has no companion requirement.
func (m *Manager) ASCFacilities() map[string]string {
	return m.page.ASCFacilities
}

// RefreshAppointment re-reads the dashboard and returns the held appointment
// recorded there. This is the only authoritative source of what is booked.
func (m *Manager) RefreshAppointment(ctx context.Context) (time.Time, error) {
	var dash portal.Dashboard
	err := m.Do(ctx, func(ctx context.Context) error {
		var e error
		dash, e = m.client.FetchDashboard(ctx)
		return e
	})
	if err != nil {
		return time.Time{}, err
	}
	m.held = dash.Appointment
	return m.held, nil
}

// AvailableDates lists the facility's open dates through the retry policy.
func (m *Manager) AvailableDates(ctx context.Context, facilityID string, companion *portal.CompanionConstraint) ([]string, error) {
	var dates []string
	err := m.Do(ctx, func(ctx context.Context) error {
		var e error
		dates, e = m.client.AvailableDates(ctx, m.scheduleID, facilityID, companion)
		return e
	})
	return dates, err
}

// AvailableTimes lists the open times for one date through the retry policy.
func (m *Manager) AvailableTimes(ctx context.Context, facilityID, date string, companion *portal.CompanionConstraint) ([]string, error) {
	var times []string
	err := m.Do(ctx, func(ctx context.Context) error {
		var e error
		times, e = m.client.AvailableTimes(ctx, m.scheduleID, facilityID, date, companion)
		return e
	})
	return times, err
}

// Book submits a booking through the retry policy.
func (m *Manager) Book(ctx context.Context, req portal.BookingRequest) error {
	return m.Do(ctx, func(ctx context.Context) error {
		return m.client.Book(ctx, m.scheduleID, req)
	})
}

func formatHeld(held time.Time) string {
	if held.IsZero() {
		return "none"
	}
	return held.Format("2006-01-02 15:04")
}
