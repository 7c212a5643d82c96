// Package booking submits booking requests and verifies they took effect.
// The portal has been observed to accept a booking POST and silently not
// apply it, so an HTTP success code is never trusted on its own.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/portal"
	"github.com/aigrvch/visabot/pkg/logging"
)

// Session is the slice of the session manager the executor needs: submit the
// booking and re-read the authoritative appointment state.
type Session interface {
	Held() time.Time
	Book(ctx context.Context, req portal.BookingRequest) error
	RefreshAppointment(ctx context.Context) (time.Time, error)
}

// Result reports one booking attempt.
type Result struct {
	// Confirmed is true only when the dashboard's held appointment changed
	// across the attempt.
	Confirmed bool
	Previous  time.Time
	Current   time.Time
}

// Executor books candidates against one schedule.
type Executor struct {
	session             Session
	facilityID          string
	companionFacilityID string
	logger              *logging.Logger
}

// NewExecutor creates a booking executor.
func NewExecutor(session Session, facilityID, companionFacilityID string, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{
		session:             session,
		facilityID:          facilityID,
		companionFacilityID: companionFacilityID,
		logger:              logger,
	}
}

// Book submits the candidate and confirms it by re-reading the dashboard.
// A nil error with Confirmed false is a soft failure: the portal accepted
// the POST but the held appointment did not change.
func (e *Executor) Book(ctx context.Context, cand availability.Candidate) (Result, error) {
	previous := e.session.Held()

	req := portal.BookingRequest{
		FacilityID: e.facilityID,
		Slot:       cand.Primary,
	}
	if cand.Companion != nil {
		req.CompanionFacilityID = e.companionFacilityID
		req.Companion = cand.Companion
	}

	e.logger.Info("attempting booking",
		"slot", cand.Primary.String(),
		"companion", companionString(cand.Companion))

	if err := e.session.Book(ctx, req); err != nil {
		return Result{Previous: previous}, fmt.Errorf("booking: submit: %w", err)
	}

	current, err := e.session.RefreshAppointment(ctx)
	if err != nil {
		return Result{Previous: previous}, fmt.Errorf("booking: verify: %w", err)
	}

	res := Result{
		Confirmed: !current.Equal(previous),
		Previous:  previous,
		Current:   current,
	}
	if res.Confirmed {
		e.logger.Info("booking confirmed", "slot", cand.Primary.String())
	} else {
		e.logger.Warn("booking not confirmed, held appointment unchanged",
			"slot", cand.Primary.String())
	}
	return res, nil
}

func companionString(s *portal.Slot) string {
	if s == nil {
		return "none"
	}
	return s.String()
}
