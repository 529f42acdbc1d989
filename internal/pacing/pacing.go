// Package pacing produces the jittered politeness delays taken around every
// network-sensitive browser action.
package pacing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"
)

// Step identifies a call site with its own delay rule.
type Step int

const (
	BetweenPages Step = iota
	BetweenSearches
	BetweenLinks
	BetweenBatches
	BetweenPipelineSteps
	BetweenShowMore
	BeforeFormFill
)

func (s Step) String() string {
	switch s {
	case BetweenPages:
		return "between_pages"
	case BetweenSearches:
		return "between_searches"
	case BetweenLinks:
		return "between_links"
	case BetweenBatches:
		return "between_batches"
	case BetweenPipelineSteps:
		return "between_pipeline_steps"
	case BetweenShowMore:
		return "between_show_more"
	case BeforeFormFill:
		return "before_form_fill"
	default:
		return "unknown"
	}
}

// Rule is the base delay and symmetric jitter for one step.
type Rule struct {
	Base   time.Duration
	Jitter time.Duration
}

// DefaultTable holds the fixed per-call-site delays.
var DefaultTable = map[Step]Rule{
	BetweenPages:         {Base: 3 * time.Second, Jitter: time.Second},
	BetweenSearches:      {Base: 5 * time.Second, Jitter: 2 * time.Second},
	BetweenLinks:         {Base: 2 * time.Second, Jitter: time.Second},
	BetweenBatches:       {Base: 30 * time.Second, Jitter: 5 * time.Second},
	BetweenPipelineSteps: {Base: 10 * time.Second, Jitter: 2 * time.Second},
	BetweenShowMore:      {Base: 1500 * time.Millisecond, Jitter: 500 * time.Millisecond},
	BeforeFormFill:       {Base: time.Second, Jitter: 500 * time.Millisecond},
}

// Delay returns max(0, base + uniform(-jitter, jitter)).
func Delay(base, jitter time.Duration) time.Duration {
	if jitter < 0 {
		jitter = -jitter
	}
	d := base
	if jitter > 0 {
		d += time.Duration(rand.Int64N(int64(2*jitter)+1)) - jitter
	}
	return max(d, 0)
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller applies the delay table and a navigation rate ceiling.
type Controller struct {
	table   map[Step]Rule
	limiter *rate.Limiter
	sleep   SleepFunc
}

// New returns a Controller using DefaultTable. navigationsPerMinute caps page
// navigations regardless of jitter; zero or less disables the cap.
func New(navigationsPerMinute int) *Controller {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if navigationsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(navigationsPerMinute)), 1)
	}
	return &Controller{table: DefaultTable, limiter: limiter, sleep: Sleep}
}

// NewWithSleep builds a Controller with a custom sleeper and no navigation cap.
// Tests use it to observe requested delays without waiting.
func NewWithSleep(sleep SleepFunc) *Controller {
	return &Controller{table: DefaultTable, limiter: rate.NewLimiter(rate.Inf, 1), sleep: sleep}
}

// Pause suspends for the jittered delay configured for step.
func (c *Controller) Pause(ctx context.Context, step Step) error {
	rule, ok := c.table[step]
	if !ok {
		slog.Warn("No pacing rule for step", "step", step)
		return nil
	}
	d := Delay(rule.Base, rule.Jitter)
	slog.Debug("Pacing", "step", step.String(), "delay", d)
	return c.sleep(ctx, d)
}

// Throttle blocks until the navigation ceiling allows another page load.
func (c *Controller) Throttle(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}
