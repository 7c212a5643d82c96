// Package egress spreads read-only availability probes across alternate
// network paths, each with its own private portal session, falling back to
// the direct path only when a cool-down has elapsed since its last use.
package egress

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/aigrvch/visabot/internal/session"
	"github.com/aigrvch/visabot/pkg/logging"
)

// ErrFallbackPending means every alternate path failed this round and the
// direct path is still cooling down. Callers must treat it as "no data this
// cycle" and defer, not as a hard failure.
var ErrFallbackPending = errors.New("egress: all paths failed, direct fallback cooling down")

// DefaultCooldown bounds how often a failed alternate round may fall back to
// the direct path.
const DefaultCooldown = 10 * time.Minute

// Path is one alternate egress route with its private session.
type Path struct {
	Name    string
	Session *session.Manager
}

// Op is one read-only probe executed against a path's session.
type Op func(ctx context.Context, s *session.Manager) error

// Router round-robins probes across alternate paths. It is driven by the
// single poll loop and therefore needs no locking; paths are tried strictly
// one at a time.
type Router struct {
	primary  *session.Manager
	paths    []Path
	cooldown time.Duration
	logger   *logging.Logger

	cursor      int
	lastPrimary time.Time
	now         func() time.Time

	observe func(path, status string)
}

// OnProbe registers a hook invoked after every probe attempt with the path
// name and "ok" or "error", used for probe counters.
func (r *Router) OnProbe(fn func(path, status string)) {
	r.observe = fn
}

func (r *Router) record(path, status string) {
	if r.observe != nil {
		r.observe(path, status)
	}
}

// NewRouter creates a router over the direct-path session and zero or more
// alternates. With no alternates every probe uses the direct path.
func NewRouter(primary *session.Manager, paths []Path, cooldown time.Duration, logger *logging.Logger) *Router {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		primary:  primary,
		paths:    paths,
		cooldown: cooldown,
		logger:   logger,
		now:      time.Now,
	}
}

// Probe runs op through the next path in round-robin order, advancing the
// cursor on every call regardless of outcome. When a probe fails the router
// moves on to the next path; once every alternate has been tried in this
// call it falls back to the direct path, unless that was used less than one
// cool-down ago, in which case ErrFallbackPending is returned.
func (r *Router) Probe(ctx context.Context, op Op) error {
	if len(r.paths) == 0 {
		r.lastPrimary = r.now()
		err := op(ctx, r.primary)
		r.record("direct", statusOf(err))
		return err
	}

	start := r.cursor
	for {
		path := r.paths[r.cursor]
		r.cursor = (r.cursor + 1) % len(r.paths)

		err := op(ctx, path.Session)
		r.record(path.Name, statusOf(err))
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		r.logger.Warn("egress: probe failed, trying next path", "path", path.Name, "error", err)

		if r.cursor == start {
			break
		}
	}

	if r.now().Sub(r.lastPrimary) <= r.cooldown {
		return ErrFallbackPending
	}
	r.logger.Info("egress: all alternate paths failed, falling back to direct path")
	r.lastPrimary = r.now()
	err := op(ctx, r.primary)
	r.record("direct", statusOf(err))
	return err
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ProxyHTTPClient builds an HTTP client routed through the given proxy URL,
// with the same uniform request timeout used on the direct path.
func ProxyHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		Timeout:   timeout,
	}, nil
}
