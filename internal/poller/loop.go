// Package poller drives the whole bot: one cycle per poll interval, each
// cycle refreshing the companion cache, probing availability, and booking
// the first candidate that improves on the held appointment. Failed cycles
// stretch the interval linearly up to a cap; clean cycles shrink it back.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/aigrvch/visabot/internal/availability"
	"github.com/aigrvch/visabot/internal/booking"
	"github.com/aigrvch/visabot/internal/egress"
	"github.com/aigrvch/visabot/internal/notify"
	"github.com/aigrvch/visabot/internal/observability/metrics"
	"github.com/aigrvch/visabot/pkg/logging"
)

// ErrBelowMinimum means the held appointment already meets the window
// minimum. There is nothing left to improve, so the run is complete.
var ErrBelowMinimum = errors.New("poller: held appointment already at the window minimum")

// Session is the slice of the session manager the loop reads.
type Session interface {
	Held() time.Time
}

// Searcher finds the best bookable candidate for the current cycle.
type Searcher interface {
	Search(ctx context.Context, held time.Time) (*availability.Candidate, error)
}

// Booker submits and verifies one booking attempt.
type Booker interface {
	Book(ctx context.Context, cand availability.Candidate) (booking.Result, error)
}

// CacheRefresher refreshes the companion slot cache once per cycle.
type CacheRefresher interface {
	RefreshCache(ctx context.Context) error
}

// Options carries the loop's optional collaborators.
type Options struct {
	Refresher CacheRefresher
	Sender    notify.EmailSender
	NotifyTo  string
	Metrics   *metrics.PollMetrics
	Logger    *logging.Logger

	// Sleep is swapped out in tests. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Loop is the poll state machine.
type Loop struct {
	session  Session
	searcher Searcher
	booker   Booker
	window   availability.Window
	interval time.Duration
	maxDelay time.Duration

	refresher CacheRefresher
	sender    notify.EmailSender
	notifyTo  string
	metrics   *metrics.PollMetrics
	logger    *logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	errCount int
}

// New creates a poll loop. interval is the base delay between cycles;
// maxDelay caps the extra backoff added after consecutive failures.
func New(session Session, searcher Searcher, booker Booker, window availability.Window, interval, maxDelay time.Duration, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Loop{
		session:   session,
		searcher:  searcher,
		booker:    booker,
		window:    window,
		interval:  interval,
		maxDelay:  maxDelay,
		refresher: opts.Refresher,
		sender:    opts.Sender,
		notifyTo:  opts.NotifyTo,
		metrics:   opts.Metrics,
		logger:    logger,
		sleep:     sleep,
	}
}

// outcome classifies one poll cycle for the backoff policy.
type outcome int

const (
	// cycleClean reached a definitive answer (even "nothing available" or a
	// soft booking failure); the error streak may shrink.
	cycleClean outcome = iota
	// cycleError is an unhandled failure; the error streak grows.
	cycleError
	// cycleDeferred produced no data at all (egress fallback pending); the
	// error streak is left untouched.
	cycleDeferred
)

// Run polls until the held appointment reaches the window minimum or the
// context is cancelled. It returns ErrBelowMinimum on completion; callers
// treat that as success.
func (l *Loop) Run(ctx context.Context) error {
	if l.window.Satisfied(l.session.Held()) {
		l.logger.Info("held appointment already meets the window minimum, nothing to do")
		return ErrBelowMinimum
	}

	for {
		done, out := l.cycle(ctx)
		if done {
			return ErrBelowMinimum
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		switch out {
		case cycleClean:
			if l.errCount > 0 {
				l.errCount--
			}
		case cycleError:
			l.errCount++
		}
		l.metrics.SetErrorStreak(l.errCount)

		if err := l.sleep(ctx, l.delay()); err != nil {
			return err
		}
	}
}

// cycle runs one poll iteration. done means the run is complete.
func (l *Loop) cycle(ctx context.Context) (done bool, out outcome) {
	if l.refresher != nil {
		if err := l.refresher.RefreshCache(ctx); err != nil {
			l.logger.Warn("companion cache refresh failed", "error", err)
		}
	}

	cand, err := l.searcher.Search(ctx, l.session.Held())
	if err != nil {
		if errors.Is(err, egress.ErrFallbackPending) {
			l.metrics.ObserveCycle("deferred")
			l.logger.Info("no egress path available this cycle, deferring")
			return false, cycleDeferred
		}
		if ctx.Err() != nil {
			return false, cycleError
		}
		l.metrics.ObserveCycle("error")
		l.logger.Warn("availability probe failed", "error", err)
		return false, cycleError
	}

	if cand == nil {
		l.metrics.ObserveCycle("no_candidate")
		l.logger.Debug("no qualifying slot this cycle")
		return false, cycleClean
	}

	res, err := l.booker.Book(ctx, *cand)
	if err != nil {
		l.metrics.ObserveCycle("error")
		l.metrics.ObserveBooking("error")
		l.logger.Warn("booking attempt failed", "slot", cand.Primary.String(), "error", err)
		return false, cycleError
	}
	if !res.Confirmed {
		// Expected under contention: someone else took the slot between the
		// probe and the POST. Not an error, just back to polling.
		l.metrics.ObserveCycle("unconfirmed")
		l.metrics.ObserveBooking("unconfirmed")
		return false, cycleClean
	}

	l.metrics.ObserveCycle("booked")
	l.metrics.ObserveBooking("confirmed")
	l.notifyConfirmed(ctx, res)

	if l.window.Satisfied(res.Current) {
		l.logger.Info("booked appointment meets the window minimum, stopping")
		return true, cycleClean
	}
	return false, cycleClean
}

// delay is the base interval plus a linear error penalty, capped.
func (l *Loop) delay() time.Duration {
	penalty := time.Duration(l.errCount) * l.interval
	if penalty > l.maxDelay {
		penalty = l.maxDelay
	}
	return l.interval + penalty
}

func (l *Loop) notifyConfirmed(ctx context.Context, res booking.Result) {
	if l.sender == nil || l.notifyTo == "" {
		return
	}
	msg := notify.BookingConfirmed(l.notifyTo, res.Previous, res.Current)
	if err := l.sender.Send(ctx, msg); err != nil {
		l.logger.Warn("confirmation email failed", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
