package poller

import (
	"context"

	"github.com/aigrvch/visabot/internal/portal"
	"github.com/aigrvch/visabot/internal/session"
)

// FacilityFeed adapts a session manager to the availability feed for one
// consular facility.
type FacilityFeed struct {
	session    *session.Manager
	facilityID string
}

// NewFacilityFeed creates a feed over the given session and facility.
func NewFacilityFeed(s *session.Manager, facilityID string) *FacilityFeed {
	return &FacilityFeed{session: s, facilityID: facilityID}
}

func (f *FacilityFeed) AvailableDates(ctx context.Context) ([]string, error) {
	return f.session.AvailableDates(ctx, f.facilityID, nil)
}

func (f *FacilityFeed) AvailableTimes(ctx context.Context, date string) ([]string, error) {
	return f.session.AvailableTimes(ctx, f.facilityID, date, nil)
}

// CompanionFeed adapts a session manager to the companion-facility feed. The
// constraint, when present, is forwarded so the provider can compute
// eligibility relative to the tentative primary slot.
type CompanionFeed struct {
	session       *session.Manager
	ascFacilityID string
}

// NewCompanionFeed creates a companion feed over the given session and
// companion facility.
func NewCompanionFeed(s *session.Manager, ascFacilityID string) *CompanionFeed {
	return &CompanionFeed{session: s, ascFacilityID: ascFacilityID}
}

func (f *CompanionFeed) CompanionDates(ctx context.Context, constraint *portal.CompanionConstraint) ([]string, error) {
	return f.session.AvailableDates(ctx, f.ascFacilityID, constraint)
}

func (f *CompanionFeed) CompanionTimes(ctx context.Context, date string, constraint *portal.CompanionConstraint) ([]string, error) {
	return f.session.AvailableTimes(ctx, f.ascFacilityID, date, constraint)
}
