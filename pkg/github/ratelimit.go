package github

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// HeaderRateRemaining is the remaining-request-quota header.
	HeaderRateRemaining = "x-ratelimit-remaining"

	// HeaderRateReset is the quota-reset header (Unix seconds).
	HeaderRateReset = "x-ratelimit-reset"

	// MinRemaining is the safety threshold below which the governor blocks
	// until the quota resets.
	MinRemaining = 5

	// ResetSlack is added on top of the reset wait to absorb clock skew
	// between this host and the API servers.
	ResetSlack = 60 * time.Second

	// DefaultRequestRate is the proactive pacing rate (~1.2 req/sec stays
	// comfortably under the 5000/hour authenticated quota).
	DefaultRequestRate = 1.2
)

// Governor paces requests against the remote API's hourly quota. It combines
// a proactive token bucket with the reactive remaining/reset headers: when
// the advertised remaining quota drops below MinRemaining, the whole run
// blocks until the advertised reset time plus ResetSlack. The run is
// single-threaded, so the blocking sleep is deliberate; there is no other
// work to do meanwhile.
type Governor struct {
	bucket    *rate.Limiter
	remaining int
	reset     time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewGovernor creates a governor that assumes a full quota until the first
// response is observed.
func NewGovernor() *Governor {
	return &Governor{
		bucket:    rate.NewLimiter(rate.Limit(DefaultRequestRate), 1),
		remaining: MinRemaining + 1,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Wait blocks until the next request may be issued.
func (g *Governor) Wait(ctx context.Context) error {
	if err := g.bucket.Wait(ctx); err != nil {
		return err
	}

	if g.remaining < MinRemaining {
		d := g.reset.Sub(g.now()) + ResetSlack
		if d > 0 {
			log.Warn().
				Int("remaining", g.remaining).
				Dur("wait", d).
				Msg("rate limit nearly exhausted, sleeping until reset")
			g.sleep(d)
		}
		// Quota has reset; assume it is usable again until the next
		// response says otherwise.
		g.remaining = MinRemaining + 1
	}

	return nil
}

// Observe updates the governor from the rate limit headers of a response.
// Responses without the headers leave the current state untouched.
func (g *Governor) Observe(resp *http.Response) {
	if resp == nil {
		return
	}

	if v := resp.Header.Get(HeaderRateRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			g.remaining = n
		}
	}
	if v := resp.Header.Get(HeaderRateReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			g.reset = time.Unix(epoch, 0)
		}
	}
}

// SetPace adjusts the proactive pacing rate. Zero or negative disables
// proactive pacing entirely, leaving only the reactive header checks.
func (g *Governor) SetPace(perSecond float64) {
	if perSecond <= 0 {
		g.bucket.SetLimit(rate.Inf)
		return
	}
	g.bucket.SetLimit(rate.Limit(perSecond))
}

// Remaining reports the last advertised remaining quota.
func (g *Governor) Remaining() int {
	return g.remaining
}
