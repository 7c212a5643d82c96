package asc

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/portal"
	"github.com/aigrvch/visabot/pkg/logging"
)

// companionLeadDays is how far ahead of the primary appointment a companion
// slot may fall: within [primary - 7d, primary).
const companionLeadDays = 7

// Feed lists companion-facility availability, optionally constrained by a
// tentative primary slot (the provider computes eligibility relative to it).
type Feed interface {
	CompanionDates(ctx context.Context, constraint *portal.CompanionConstraint) ([]string, error)
	CompanionTimes(ctx context.Context, date string, constraint *portal.CompanionConstraint) ([]string, error)
}

// Coordinator finds companion slots for tentative primary slots, consulting
// the cache before probing the provider.
type Coordinator struct {
	feed       Feed
	cache      *Cache
	window     availability.Window
	facilityID string // primary facility, passed as the companion constraint
	logger     *logging.Logger
	rand       *rand.Rand
}

// NewCoordinator creates a companion-slot coordinator. The window is the
// operator's date window; only dates inside it are ever cached.
func NewCoordinator(feed Feed, cache *Cache, window availability.Window, facilityID string, logger *logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Coordinator{
		feed:       feed,
		cache:      cache,
		window:     window,
		facilityID: facilityID,
		logger:     logger,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// FindCompanionSlot returns a companion slot whose date lies within
// [primary-7d, primary), or nil when none is available. The cache is
// consulted first; a miss probes the provider directly. Feed errors here
// must prevent booking the primary, so they propagate.
//
// The time of day is picked uniformly at random among the date's options,
// which spreads load across slots other users are also racing for.
func (c *Coordinator) FindCompanionSlot(ctx context.Context, primary portal.Slot) (*portal.Slot, error) {
	earliest, err := companionWindowStart(primary.Date)
	if err != nil {
		return nil, err
	}

	if slot := c.fromCache(ctx, earliest, primary.Date); slot != nil {
		c.logger.Debug("asc: companion slot from cache", "slot", slot.String())
		return slot, nil
	}

	constraint := &portal.CompanionConstraint{
		FacilityID: c.facilityID,
		Date:       primary.Date,
		Time:       primary.Time,
	}
	dates, err := c.feed.CompanionDates(ctx, constraint)
	if err != nil {
		return nil, fmt.Errorf("asc: companion dates: %w", err)
	}

	for _, date := range dates {
		if date < earliest || date >= primary.Date {
			continue
		}
		times, err := c.feed.CompanionTimes(ctx, date, constraint)
		if err != nil {
			return nil, fmt.Errorf("asc: companion times for %s: %w", date, err)
		}
		if len(times) == 0 {
			continue
		}
		slot := &portal.Slot{Date: date, Time: times[c.rand.Intn(len(times))]}
		c.logger.Debug("asc: companion slot from feed", "slot", slot.String())
		return slot, nil
	}
	return nil, nil
}

// fromCache scans the cached map for a date inside [earliest, primaryDate)
// with at least one time. Cache failures are tolerated as misses.
func (c *Coordinator) fromCache(ctx context.Context, earliest, primaryDate string) *portal.Slot {
	if c.cache == nil {
		return nil
	}
	cached, err := c.cache.Get(ctx)
	if err != nil {
		c.logger.Warn("asc: cache unavailable, falling back to feed", "error", err)
		return nil
	}

	dates := make([]string, 0, len(cached))
	for date := range cached {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if date < earliest || date >= primaryDate {
			continue
		}
		times := cached[date]
		if len(times) == 0 {
			continue
		}
		return &portal.Slot{Date: date, Time: times[c.rand.Intn(len(times))]}
	}
	return nil
}

// RefreshCache re-fetches the full companion-date feed once per poll cycle,
// keeps only dates inside the operator's window, and persists the result.
// Individual per-date failures are skipped: the cache is best-effort.
func (c *Coordinator) RefreshCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}

	dates, err := c.feed.CompanionDates(ctx, nil)
	if err != nil {
		return fmt.Errorf("asc: refresh cache: %w", err)
	}

	// Cached dates must lie within [min, max] inclusive; the companion may
	// land on the window minimum itself since only the primary is bound by
	// the strict minimum.
	minDate := ""
	if !c.window.Min.IsZero() {
		minDate = c.window.Min.Format(portal.DateLayout)
	}
	maxDate := ""
	if !c.window.Max.IsZero() {
		maxDate = c.window.Max.Format(portal.DateLayout)
	}

	slots := make(map[string][]string)
	for _, date := range dates {
		if date < minDate || (maxDate != "" && date > maxDate) {
			continue
		}
		times, err := c.feed.CompanionTimes(ctx, date, nil)
		if err != nil {
			c.logger.Warn("asc: skipping date during cache refresh", "date", date, "error", err)
			continue
		}
		if len(times) > 0 {
			slots[date] = times
		}
	}

	if err := c.cache.Replace(ctx, slots); err != nil {
		return err
	}
	c.logger.Debug("asc: cache refreshed", "dates", len(slots))
	return nil
}

// companionWindowStart returns the earliest acceptable companion date for a
// primary date.
func companionWindowStart(primaryDate string) (string, error) {
	parsed, err := time.Parse(portal.DateLayout, primaryDate)
	if err != nil {
		return "", fmt.Errorf("asc: bad primary date %q: %w", primaryDate, err)
	}
	return parsed.AddDate(0, 0, -companionLeadDays).Format(portal.DateLayout), nil
}
