// Package gen wraps the text-generation provider behind a pacing and
// circuit-breaking gateway. Callers never see an error: a declined or failed
// generation is reported as ok=false and the caller skips its cycle.
package gen

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Godbrand0/prophet/internal/llm"
)

const (
	defaultMaxAttempts  = 3
	defaultBackoffBase  = 2 * time.Second
	defaultBackoffCap   = 30 * time.Second
	defaultExhaustFloor = 120 * time.Second
)

type Gateway struct {
	client  llm.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	maxAttempts  int
	backoffBase  time.Duration
	backoffCap   time.Duration
	exhaustFloor time.Duration

	mu        sync.Mutex
	exhausted bool
	resumeAt  time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(client llm.Client, cooldown time.Duration) *Gateway {
	if cooldown <= 0 {
		cooldown = time.Nanosecond
	}
	return &Gateway{
		client:       client,
		limiter:      rate.NewLimiter(rate.Every(cooldown), 1),
		logger:       slog.With("component", "gateway"),
		maxAttempts:  defaultMaxAttempts,
		backoffBase:  defaultBackoffBase,
		backoffCap:   defaultBackoffCap,
		exhaustFloor: defaultExhaustFloor,
		now:          time.Now,
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Exhausted reports the circuit-breaker state and its resume deadline.
func (g *Gateway) Exhausted() (bool, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.exhausted, g.resumeAt
}

// Generate produces text for the prompt, pacing calls to the provider and
// folding every failure into ok=false. An empty string with ok=true is a
// valid result distinct from a declined call.
func (g *Gateway) Generate(ctx context.Context, prompt llm.Prompt) (string, bool) {
	g.mu.Lock()
	if g.exhausted {
		if g.now().Before(g.resumeAt) {
			g.mu.Unlock()
			g.logger.Info("generation skipped, provider exhausted", "resume_at", g.resumeAt)
			return "", false
		}
		// Optimistic resume: the deadline passed, try again.
		g.exhausted = false
	}
	g.mu.Unlock()

	// The limiter enforces the minimum inter-call interval and, with burst 1,
	// keeps at most one logical call in flight.
	if err := g.limiter.Wait(ctx); err != nil {
		return "", false
	}

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		text, err := g.client.Generate(ctx, prompt)
		if err == nil {
			return strings.TrimSpace(text), true
		}

		if rle, ok := llm.AsRateLimit(err); ok {
			g.logger.Warn("generation rate limited", "attempt", attempt, "retry_after", rle.RetryAfter)
			if attempt == g.maxAttempts {
				g.trip(rle.RetryAfter)
				return "", false
			}
			// In-loop retries follow the exponential schedule; the server
			// hint only shapes the exhausted transition.
			if err := g.sleep(ctx, g.backoffDelay(attempt)); err != nil {
				return "", false
			}
			continue
		}

		g.logger.Warn("generation failed", "attempt", attempt, "err", err)
		if attempt == g.maxAttempts {
			return "", false
		}
		if ctx.Err() != nil {
			return "", false
		}
	}
	return "", false
}

func (g *Gateway) backoffDelay(attempt int) time.Duration {
	d := g.backoffBase << (attempt - 1)
	if d > g.backoffCap {
		d = g.backoffCap
	}
	return d
}

// trip opens the circuit breaker. resumeAt never moves backwards while the
// breaker is open.
func (g *Gateway) trip(suggested time.Duration) {
	delay := suggested
	if delay < g.exhaustFloor {
		delay = g.exhaustFloor
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	resume := g.now().Add(delay)
	if g.exhausted && resume.Before(g.resumeAt) {
		resume = g.resumeAt
	}
	g.exhausted = true
	g.resumeAt = resume
	g.logger.Warn("generation provider exhausted", "resume_at", resume)
}
