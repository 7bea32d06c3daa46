// Package fetch provides the rate-gated fetch and pagination engine used to
// walk paginated search APIs: a sliding-window admission gate, a smoothed
// retrying HTTP client, a requester that couples the two, and a paginator
// that fans page fetches out concurrently while preserving offset order.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/affiliation-harvester/internal/domain"
)

const (
	// DefaultGatePeriod is the default sliding window length.
	DefaultGatePeriod = time.Second

	// DefaultGateRetryInterval is the default wait between admission attempts
	// while the window is full.
	DefaultGateRetryInterval = 100 * time.Millisecond
)

// Gate admits at most limit calls within any trailing period window, across
// all concurrent callers. A denied caller polls: it sleeps for the retry
// interval and re-checks, so every caller is eventually admitted but no
// FIFO order is promised. Create one Gate per paginated operation; sharing
// a Gate across unrelated operations couples their budgets.
type Gate struct {
	limit         int
	period        time.Duration
	retryInterval time.Duration

	mu sync.Mutex
	// admissions holds the timestamps of admissions still inside the
	// trailing window, oldest first. Entries older than the period are
	// evicted before every admission check.
	admissions []time.Time
}

// NewGate creates a gate admitting at most limit calls per period.
// Non-positive arguments fall back to a limit of one call per
// DefaultGatePeriod with DefaultGateRetryInterval between attempts.
func NewGate(limit int, period, retryInterval time.Duration) *Gate {
	if limit <= 0 {
		limit = 1
	}
	if period <= 0 {
		period = DefaultGatePeriod
	}
	if retryInterval <= 0 {
		retryInterval = DefaultGateRetryInterval
	}

	return &Gate{
		limit:         limit,
		period:        period,
		retryInterval: retryInterval,
		admissions:    make([]time.Time, 0, limit),
	}
}

// Acquire blocks until admitting the caller keeps the trailing window within
// the limit, then records the admission and returns. It returns the context
// error when ctx ends while waiting.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		admitted, err := g.tryAdmit(time.Now())
		if err != nil {
			return err
		}
		if admitted {
			return nil
		}

		timer := time.NewTimer(g.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit evicts admissions older than the period and admits the caller if
// the window has room. The returned error is ErrGateInvariant if the window
// ever holds more than the limit; unreachable by construction, checked so
// tests can prove it stays that way.
func (g *Gate) tryAdmit(now time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := now.Add(-g.period)
	kept := g.admissions[:0]
	for _, ts := range g.admissions {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	g.admissions = kept

	if len(g.admissions) >= g.limit {
		return false, nil
	}

	g.admissions = append(g.admissions, now)
	if len(g.admissions) > g.limit {
		return false, domain.ErrGateInvariant
	}
	return true, nil
}

// Admissions returns a copy of the admission timestamps still inside the
// trailing window as of the last admission attempt, oldest first.
func (g *Gate) Admissions() []time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]time.Time, len(g.admissions))
	copy(out, g.admissions)
	return out
}
