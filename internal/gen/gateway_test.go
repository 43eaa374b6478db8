package gen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Godbrand0/prophet/internal/llm"
)

// scriptedClient replays a fixed sequence of results and records call times.
type scriptedClient struct {
	results []result
	calls   int
	callAt  []time.Time
}

type result struct {
	text string
	err  error
}

func (c *scriptedClient) Generate(ctx context.Context, prompt llm.Prompt) (string, error) {
	c.callAt = append(c.callAt, time.Now())
	idx := c.calls
	c.calls++
	if idx >= len(c.results) {
		idx = len(c.results) - 1
	}
	r := c.results[idx]
	return r.text, r.err
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) Model() string    { return "test" }

func newTestGateway(client llm.Client, cooldown time.Duration) *Gateway {
	g := New(client, cooldown)
	g.backoffBase = time.Millisecond
	g.backoffCap = 4 * time.Millisecond
	return g
}

func TestGenerateTrimsResult(t *testing.T) {
	client := &scriptedClient{results: []result{{text: "  so speaks the ledger  "}}}
	g := newTestGateway(client, 0)

	text, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.True(t, ok)
	assert.Equal(t, "so speaks the ledger", text)
}

func TestGenerateEmptyTextIsValid(t *testing.T) {
	client := &scriptedClient{results: []result{{text: "   "}}}
	g := newTestGateway(client, 0)

	text, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.True(t, ok)
	assert.Equal(t, "", text)
}

func TestCooldownSpacesCalls(t *testing.T) {
	client := &scriptedClient{results: []result{{text: "ok"}}}
	cooldown := 40 * time.Millisecond
	g := newTestGateway(client, cooldown)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, ok := g.Generate(ctx, llm.Prompt{User: "speak"})
		require.True(t, ok)
	}

	require.Len(t, client.callAt, 3)
	for i := 1; i < len(client.callAt); i++ {
		gap := client.callAt[i].Sub(client.callAt[i-1])
		// Allow a small scheduling slop below the nominal cooldown.
		assert.GreaterOrEqual(t, gap, cooldown-5*time.Millisecond,
			"calls %d and %d closer than the cooldown", i-1, i)
	}
}

func TestRateLimitExhaustsAfterRetries(t *testing.T) {
	rle := &llm.RateLimitError{Provider: "scripted", StatusCode: 429, RetryAfter: 300 * time.Second}
	client := &scriptedClient{results: []result{{err: rle}}}
	g := newTestGateway(client, 0)

	start := time.Unix(1700000000, 0)
	g.now = func() time.Time { return start }
	slept := []time.Duration{}
	g.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	text, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	assert.False(t, ok)
	assert.Equal(t, "", text)
	assert.Equal(t, 3, client.calls)
	assert.Len(t, slept, 2, "backoff sleeps between in-loop retries only")

	exhausted, resumeAt := g.Exhausted()
	require.True(t, exhausted)
	// Server hint (300s) beats the 120s floor.
	assert.Equal(t, start.Add(300*time.Second), resumeAt)
}

func TestExhaustionFloorApplies(t *testing.T) {
	rle := &llm.RateLimitError{Provider: "scripted", StatusCode: 429, RetryAfter: 10 * time.Second}
	client := &scriptedClient{results: []result{{err: rle}}}
	g := newTestGateway(client, 0)

	start := time.Unix(1700000000, 0)
	g.now = func() time.Time { return start }
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.False(t, ok)

	_, resumeAt := g.Exhausted()
	assert.Equal(t, start.Add(120*time.Second), resumeAt)
}

func TestFastFailWhileExhausted(t *testing.T) {
	client := &scriptedClient{results: []result{{err: &llm.RateLimitError{StatusCode: 429}}}}
	g := newTestGateway(client, 0)
	now := time.Unix(1700000000, 0)
	g.now = func() time.Time { return now }
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.False(t, ok)
	callsAfterTrip := client.calls

	// Still before resumeAt: no network call happens.
	now = now.Add(time.Minute)
	_, ok = g.Generate(context.Background(), llm.Prompt{User: "speak"})
	assert.False(t, ok)
	assert.Equal(t, callsAfterTrip, client.calls)
}

func TestOptimisticResumeAfterDeadline(t *testing.T) {
	client := &scriptedClient{results: []result{
		{err: &llm.RateLimitError{StatusCode: 429}},
		{err: &llm.RateLimitError{StatusCode: 429}},
		{err: &llm.RateLimitError{StatusCode: 429}},
		{text: "the drought has passed"},
	}}
	g := newTestGateway(client, 0)
	now := time.Unix(1700000000, 0)
	g.now = func() time.Time { return now }
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.False(t, ok)

	now = now.Add(121 * time.Second)
	text, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.True(t, ok)
	assert.Equal(t, "the drought has passed", text)

	exhausted, _ := g.Exhausted()
	assert.False(t, exhausted)
}

func TestResumeAtNeverDecreasesWhileExhausted(t *testing.T) {
	g := newTestGateway(&scriptedClient{results: []result{{text: "x"}}}, 0)
	now := time.Unix(1700000000, 0)
	g.now = func() time.Time { return now }

	g.trip(400 * time.Second)
	_, first := g.Exhausted()

	g.trip(130 * time.Second)
	_, second := g.Exhausted()
	assert.False(t, second.Before(first), "resumeAt moved backwards")
}

func TestGenericErrorsRetryWithoutBackoff(t *testing.T) {
	client := &scriptedClient{results: []result{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{text: "third time"},
	}}
	g := newTestGateway(client, 0)
	sleeps := 0
	g.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		return nil
	}

	text, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	require.True(t, ok)
	assert.Equal(t, "third time", text)
	assert.Equal(t, 0, sleeps)
	assert.Equal(t, 3, client.calls)

	exhausted, _ := g.Exhausted()
	assert.False(t, exhausted, "generic failures never trip the breaker")
}

func TestGenericErrorsExhaustAttemptsQuietly(t *testing.T) {
	client := &scriptedClient{results: []result{{err: errors.New("boom")}}}
	g := newTestGateway(client, 0)

	_, ok := g.Generate(context.Background(), llm.Prompt{User: "speak"})
	assert.False(t, ok)
	assert.Equal(t, 3, client.calls)
}
