// Package availability implements the slot selection policy: find the
// earliest slot that improves on the held appointment inside the operator's
// date window, fetching times only for dates that can still win.
package availability

import (
	"context"
	"time"

	"github.com/aigrvch/visabot/internal/portal"
)

// Window is the operator's date constraint. A candidate date d qualifies
// only if Min < d and (Max is zero or d <= Max).
type Window struct {
	Min time.Time
	Max time.Time
}

// Accepts reports whether the date qualifies under the window.
func (w Window) Accepts(date time.Time) bool {
	if !date.After(w.Min) {
		return false
	}
	return w.Max.IsZero() || !date.After(w.Max)
}

// Satisfied reports whether a held appointment already meets the window's
// minimum, i.e. there is nothing left to improve. The comparison is at date
// granularity: a held slot on the minimum date satisfies the window no
// matter its time of day.
func (w Window) Satisfied(held time.Time) bool {
	if held.IsZero() {
		return false
	}
	return held.Format(portal.DateLayout) <= w.Min.Format(portal.DateLayout)
}

// Feed lists a facility's open dates (ascending) and the open times for one
// date (ascending).
type Feed interface {
	AvailableDates(ctx context.Context) ([]string, error)
	AvailableTimes(ctx context.Context, date string) ([]string, error)
}

// CompanionFinder locates a companion slot for a tentative primary slot.
// A nil slot with nil error means no companion is available.
type CompanionFinder interface {
	FindCompanionSlot(ctx context.Context, primary portal.Slot) (*portal.Slot, error)
}

// Candidate is a bookable improvement over the held appointment.
type Candidate struct {
	Primary   portal.Slot
	Companion *portal.Slot
}

// Search scans the date feed in order and returns the first candidate that
// qualifies, or nil when none does.
//
// The scan skips dates at or before the window minimum, and stops outright
// at the first date at or past the held appointment's date (the feed is
// sorted, so no later date can improve on what is already booked) or past
// the window maximum. That early exit bounds the number of time lookups to
// the dates strictly between the minimum and the held date.
//
// When companion is non-nil, a date whose companion lookup comes back empty
// is passed over and the scan continues with the next date.
func Search(ctx context.Context, feed Feed, w Window, held time.Time, companion CompanionFinder) (*Candidate, error) {
	dates, err := feed.AvailableDates(ctx)
	if err != nil {
		return nil, err
	}

	minDate := ""
	if !w.Min.IsZero() {
		minDate = w.Min.Format(portal.DateLayout)
	}
	maxDate := ""
	if !w.Max.IsZero() {
		maxDate = w.Max.Format(portal.DateLayout)
	}
	heldDate := ""
	if !held.IsZero() {
		heldDate = held.Format(portal.DateLayout)
	}

	for _, date := range dates {
		if minDate != "" && date <= minDate {
			continue
		}
		if heldDate != "" && date >= heldDate {
			break
		}
		if maxDate != "" && date > maxDate {
			break
		}

		times, err := feed.AvailableTimes(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(times) == 0 {
			continue
		}

		primary := portal.Slot{Date: date, Time: times[0]}
		if companion == nil {
			return &Candidate{Primary: primary}, nil
		}

		companionSlot, err := companion.FindCompanionSlot(ctx, primary)
		if err != nil {
			return nil, err
		}
		if companionSlot == nil {
			continue
		}
		return &Candidate{Primary: primary, Companion: companionSlot}, nil
	}
	return nil, nil
}
