package portal

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	// DateLayout is the calendar-date format used by the availability feeds
	// and the booking form. ISO ordering makes lexicographic comparison of
	// formatted dates equal to chronological comparison.
	DateLayout = "2006-01-02"
	// TimeLayout is the local-time format used by the time feeds.
	TimeLayout = "15:04"
	// appointmentLayout matches the human-readable date on the dashboard,
	// e.g. "13 March, 2024, 09:30".
	appointmentLayout = "2 January, 2006, 15:04"
)

// Slot is one bookable (date, time) pair at a facility.
type Slot struct {
	Date string // DateLayout
	Time string // TimeLayout
}

// DateTime combines the slot's date and time into a single timestamp.
func (s Slot) DateTime() (time.Time, error) {
	return time.Parse(DateLayout+" "+TimeLayout, s.Date+" "+s.Time)
}

func (s Slot) String() string {
	return s.Date + " " + s.Time
}

// Session holds the authentication artifacts of one signed-in portal session.
// The cookie itself lives in the client's jar; a session is usable only when
// both the jar and the CSRF token came from the same login/refresh sequence.
type Session struct {
	CSRFToken  string
	ValidSince time.Time
}

// Valid reports whether the session has been established at all.
func (s Session) Valid() bool {
	return s.CSRFToken != "" && !s.ValidSince.IsZero()
}

// Dashboard is the parsed result of the account landing page.
type Dashboard struct {
	// ScheduleIDs lists every manageable appointment record found, in page
	// order. Empty means the account has nothing to manage.
	ScheduleIDs []string
	// Appointment is the currently held appointment's date and time, zero
	// when the page shows none.
	Appointment time.Time
}

// AppointmentPage is the parsed result of the reschedule page. Loading it is
// also what refreshes the page-scoped CSRF token.
type AppointmentPage struct {
	Facilities    map[string]string // facility id -> location name
	ASCFacilities map[string]string // companion facility id -> location name
}

// CompanionConstraint scopes a companion-availability query to a tentative
// primary slot; the provider computes eligible companion slots relative to it.
type CompanionConstraint struct {
	FacilityID string
	Date       string
	Time       string
}

// BookingRequest is one booking submission: the primary slot plus, when the
// account requires it, the companion slot that must precede it.
type BookingRequest struct {
	FacilityID string
	Slot       Slot

	CompanionFacilityID string
	Companion           *Slot
}

// StatusError is returned for any non-2xx portal response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal: %s returned status %d", e.URL, e.Code)
}

// IsUnauthorized reports whether err is a 401 from the portal, which means
// the session cookie is no longer accepted and must be re-established.
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// ErrNoCSRFToken is returned when a page that must carry a csrf-token meta
// tag does not.
var ErrNoCSRFToken = errors.New("portal: csrf token not found in page")
