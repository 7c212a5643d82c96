package poller

import (
	"context"
	"time"

	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/egress"
	"github.com/aigrvch/visabot/internal/session"
)

// Prober runs a read-only probe through an egress path.
type Prober interface {
	Probe(ctx context.Context, op egress.Op) error
}

// ProbeSearcher runs the availability search through whichever egress path
// the router hands it, so probe traffic rotates while booking traffic stays
// on the direct session.
type ProbeSearcher struct {
	prober     Prober
	window     availability.Window
	facilityID string
	companion  availability.CompanionFinder
}

// NewProbeSearcher creates a searcher. companion may be nil when the account
// has no companion requirement.
func NewProbeSearcher(prober Prober, window availability.Window, facilityID string, companion availability.CompanionFinder) *ProbeSearcher {
	return &ProbeSearcher{
		prober:     prober,
		window:     window,
		facilityID: facilityID,
		companion:  companion,
	}
}

// Search returns the best bookable candidate visible this cycle, nil when
// none qualifies.
func (p *ProbeSearcher) Search(ctx context.Context, held time.Time) (*availability.Candidate, error) {
	var cand *availability.Candidate
	err := p.prober.Probe(ctx, func(ctx context.Context, s *session.Manager) error {
		found, err := availability.Search(ctx, NewFacilityFeed(s, p.facilityID), p.window, held, p.companion)
		if err != nil {
			return err
		}
		cand = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cand, nil
}
