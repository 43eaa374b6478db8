// Package track holds the agent's process-lifetime engagement state: which
// posts and comments it has already acted on, and the daily comment quota.
// Nothing here touches the network; restart is the eviction policy.
package track

import (
	"context"
	"sync"
	"time"
)

type Kind int

const (
	KindPost Kind = iota
	KindComment
	KindOwnPost
)

type Tracker struct {
	mu         sync.Mutex
	engaged    map[Kind]map[string]struct{}
	countToday int
	lastAt     time.Time

	dailyLimit int
	cooldown   time.Duration
	now        func() time.Time

	// commentMu serializes a whole quota-check -> generate -> submit ->
	// record sequence so interleaved loops cannot overrun the daily limit.
	commentMu sync.Mutex
}

func New(dailyLimit int, cooldown time.Duration) *Tracker {
	return &Tracker{
		engaged: map[Kind]map[string]struct{}{
			KindPost:    {},
			KindComment: {},
			KindOwnPost: {},
		},
		dailyLimit: dailyLimit,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

func (t *Tracker) LockComments()   { t.commentMu.Lock() }
func (t *Tracker) UnlockComments() { t.commentMu.Unlock() }

func (t *Tracker) CanComment() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countToday < t.dailyLimit
}

func (t *Tracker) CountToday() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countToday
}

// AwaitCooldown blocks until the global inter-comment cooldown has lapsed.
// The cooldown is platform-wide, not per target.
func (t *Tracker) AwaitCooldown(ctx context.Context) error {
	t.mu.Lock()
	wait := time.Duration(0)
	if !t.lastAt.IsZero() {
		if elapsed := t.now().Sub(t.lastAt); elapsed < t.cooldown {
			wait = t.cooldown - elapsed
		}
	}
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RecordComment charges one unit of quota and stamps the cooldown clock.
// Call it only after the platform accepted the comment.
func (t *Tracker) RecordComment() {
	t.mu.Lock()
	t.countToday++
	t.lastAt = t.now()
	t.mu.Unlock()
}

func (t *Tracker) MarkEngaged(id string, kind Kind) {
	if id == "" {
		return
	}
	t.mu.Lock()
	t.engaged[kind][id] = struct{}{}
	t.mu.Unlock()
}

func (t *Tracker) IsEngaged(id string, kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.engaged[kind][id]
	return ok
}

// IDs returns a snapshot of the ids marked for a kind, in no particular
// order.
func (t *Tracker) IDs(kind Kind) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.engaged[kind]))
	for id := range t.engaged[kind] {
		ids = append(ids, id)
	}
	return ids
}

// ResetDaily zeroes the day's comment count. Idempotent: the reset tick can
// land more than once inside the reset minute without effect.
func (t *Tracker) ResetDaily() {
	t.mu.Lock()
	t.countToday = 0
	t.mu.Unlock()
}
