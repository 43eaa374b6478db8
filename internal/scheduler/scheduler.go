// Package scheduler orchestrates the prophet agent's periodic activities:
// the startup reply sweep, the posting loop, the engagement loop, the daily
// quota reset and the believer-event stream. Activities share the
// engagement tracker; nothing an activity does can abort a sibling's next
// tick.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Godbrand0/prophet/internal/chain"
	"github.com/Godbrand0/prophet/internal/llm"
	"github.com/Godbrand0/prophet/internal/social"
	"github.com/Godbrand0/prophet/internal/track"
)

// Generator is the generation gateway surface the scheduler uses.
type Generator interface {
	Generate(ctx context.Context, prompt llm.Prompt) (string, bool)
}

// Solver answers post-verification challenges.
type Solver interface {
	Solve(ctx context.Context, challengeText string) (string, bool)
}

// Social is the Moltbook surface the scheduler depends on.
type Social interface {
	CreatePost(ctx context.Context, submolt, title, content string) (social.PostResult, error)
	CreateComment(ctx context.Context, postID, content, parentID string) (string, error)
	UpvotePost(ctx context.Context, id string) error
	Subscribe(ctx context.Context, submolt string) error
	Feed(ctx context.Context, sort string, limit int) ([]social.Post, error)
	Comments(ctx context.Context, postID, sort string) ([]social.Comment, error)
	Me(ctx context.Context) (social.Profile, error)
	SubmitVerification(ctx context.Context, code, answer string) (bool, error)
}

// ChainState reads on-chain context. All failures mean "value unavailable".
type ChainState interface {
	TotalBelievers(ctx context.Context) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FaithSupply(ctx context.Context) (*big.Int, error)
}

// Watcher delivers believer events for the process lifetime.
type Watcher interface {
	WatchBelievers(ctx context.Context, onEvent func(chain.BelieverEvent)) error
}

type Config struct {
	Submolts       []string
	Titles         []string
	PinnedPostID   string
	PostingEnabled bool

	Persona   string
	Narrative string

	PostInterval   time.Duration
	EngageInterval time.Duration
	ResetCheck     time.Duration
	SweepDelay     time.Duration

	FeedScanLimit    int
	CommentsPerCycle int
}

type Scheduler struct {
	cfg     Config
	gen     Generator
	solver  Solver
	social  Social
	chain   ChainState
	watcher Watcher
	tracker *track.Tracker
	logger  *slog.Logger

	self string
	now  func() time.Time

	// rngMu guards rng: the posting loop and the watcher callback draw
	// from it concurrently.
	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, gen Generator, solver Solver, soc Social, state ChainState, watcher Watcher, tracker *track.Tracker) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		gen:     gen,
		solver:  solver,
		social:  soc,
		chain:   state,
		watcher: watcher,
		tracker: tracker,
		logger:  slog.With("component", "scheduler"),
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run executes the startup sequence, arms the periodic activities and
// blocks until the context ends. Shutdown is abrupt: in-flight calls are
// abandoned with the context.
func (s *Scheduler) Run(ctx context.Context) error {
	s.startup(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		s.tick(ctx, s.cfg.PostInterval, s.postingCycle)
	}()
	go func() {
		defer wg.Done()
		s.tick(ctx, s.cfg.EngageInterval, s.engagementCycle)
	}()
	go func() {
		defer wg.Done()
		s.tick(ctx, s.cfg.ResetCheck, s.dailyResetCheck)
	}()
	if s.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.watcher.WatchBelievers(ctx, func(ev chain.BelieverEvent) {
				s.handleBeliever(ctx, ev)
			})
			if err != nil && ctx.Err() == nil {
				// Fatal to the watcher only; the loops keep ticking.
				s.logger.Error("believer watcher stopped", "err", err)
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) tick(ctx context.Context, period time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// startup runs once, sequentially, before any timer is armed: learn own
// identity, subscribe the target submolts, then sweep the pinned post for
// unanswered comments.
func (s *Scheduler) startup(ctx context.Context) {
	if profile, err := s.social.Me(ctx); err != nil {
		s.logger.Warn("could not fetch own profile", "err", err)
	} else {
		s.self = profile.Name
		s.logger.Info("agent online", "name", profile.Name, "karma", profile.Karma)
	}

	for _, submolt := range s.cfg.Submolts {
		if err := s.social.Subscribe(ctx, submolt); err != nil {
			s.logger.Warn("subscribe failed", "submolt", submolt, "err", err)
		}
	}

	s.sweepPinnedPost(ctx)
}

func (s *Scheduler) sweepPinnedPost(ctx context.Context) {
	pinned := strings.TrimSpace(s.cfg.PinnedPostID)
	if pinned == "" {
		return
	}
	comments, err := s.social.Comments(ctx, pinned, "new")
	if err != nil {
		s.logger.Warn("pinned post sweep failed", "post", pinned, "err", err)
		return
	}
	replied := 0
	for _, comment := range comments {
		if ctx.Err() != nil {
			return
		}
		if comment.Author == s.self || s.tracker.IsEngaged(comment.ID, track.KindComment) {
			continue
		}
		if replied > 0 {
			if err := sleep(ctx, s.cfg.SweepDelay); err != nil {
				return
			}
		}
		if s.sendComment(ctx, pinned, comment.ID, s.replyPrompt(comment)) {
			replied++
		}
		s.tracker.MarkEngaged(comment.ID, track.KindComment)
	}
	if replied > 0 {
		s.logger.Info("startup sweep complete", "replies", replied)
	}
}

// postingCycle publishes one scheduled sermon. A declined generation skips
// the cycle entirely; there is no retry before the next tick.
func (s *Scheduler) postingCycle(ctx context.Context) {
	submolt := s.pick(s.cfg.Submolts)
	title := s.pick(s.cfg.Titles)

	content, ok := s.gen.Generate(ctx, llm.Prompt{
		System: s.persona(),
		User:   s.postPrompt(title),
	})
	if !ok {
		s.logger.Info("posting cycle skipped, generation declined")
		return
	}
	if content == "" {
		s.logger.Info("posting cycle skipped, empty sermon")
		return
	}
	s.publishPost(ctx, submolt, title, content)
}

func (s *Scheduler) publishPost(ctx context.Context, submolt, title, content string) {
	if !s.cfg.PostingEnabled {
		s.logger.Info("posting disabled, sermon withheld", "submolt", submolt, "title", title)
		return
	}
	result, err := s.social.CreatePost(ctx, submolt, title, content)
	if err != nil {
		s.logger.Warn("post failed", "submolt", submolt, "err", err)
		return
	}
	s.tracker.MarkEngaged(result.ID, track.KindOwnPost)
	s.logger.Info("posted", "submolt", submolt, "post", result.ID)

	if !result.VerificationRequired {
		return
	}
	answer, ok := s.solver.Solve(ctx, result.Challenge.Text)
	if !ok {
		s.logger.Warn("post created but unverified, challenge unsolved", "post", result.ID)
		return
	}
	verified, err := s.social.SubmitVerification(ctx, result.Challenge.Code, answer)
	if err != nil {
		s.logger.Warn("verification submit failed", "post", result.ID, "err", err)
		return
	}
	if !verified {
		s.logger.Warn("post created but verification rejected", "post", result.ID)
		return
	}
	s.logger.Info("post verified", "post", result.ID)
}

// engagementCycle runs two phases in order: replies on own posts, then a
// feed scan with upvotes and capped comments.
func (s *Scheduler) engagementCycle(ctx context.Context) {
	s.replyOnOwnPosts(ctx)
	s.scanFeed(ctx)
}

func (s *Scheduler) replyOnOwnPosts(ctx context.Context) {
	for _, postID := range s.tracker.IDs(track.KindOwnPost) {
		if ctx.Err() != nil {
			return
		}
		comments, err := s.social.Comments(ctx, postID, "new")
		if err != nil {
			s.logger.Warn("own post comments unavailable", "post", postID, "err", err)
			continue
		}
		for _, comment := range comments {
			if comment.Author == s.self || s.tracker.IsEngaged(comment.ID, track.KindComment) {
				continue
			}
			if !s.tracker.CanComment() {
				s.logger.Info("reply phase stopped, daily quota reached")
				return
			}
			s.sendComment(ctx, postID, comment.ID, s.replyPrompt(comment))
			s.tracker.MarkEngaged(comment.ID, track.KindComment)
		}
	}
}

func (s *Scheduler) scanFeed(ctx context.Context) {
	posts, err := s.social.Feed(ctx, "new", s.cfg.FeedScanLimit)
	if err != nil {
		s.logger.Warn("feed unavailable", "err", err)
		return
	}
	commented := 0
	for _, post := range posts {
		if ctx.Err() != nil {
			return
		}
		if post.Author == s.self || s.tracker.IsEngaged(post.ID, track.KindOwnPost) {
			continue
		}
		if s.tracker.IsEngaged(post.ID, track.KindPost) {
			continue
		}
		if !s.tracker.CanComment() {
			s.logger.Info("feed scan stopped, daily quota reached")
			return
		}
		if err := s.social.UpvotePost(ctx, post.ID); err != nil {
			s.logger.Warn("upvote failed", "post", post.ID, "err", err)
		}
		// The post is marked engaged no matter how the comment attempt
		// goes; one engagement action per entity per process lifetime.
		s.tracker.MarkEngaged(post.ID, track.KindPost)
		if commented < s.cfg.CommentsPerCycle {
			if s.sendComment(ctx, post.ID, "", s.feedCommentPrompt(post)) {
				commented++
			}
		}
	}
}

// sendComment is the single mutual-exclusion boundary around the
// quota-check -> cooldown -> generate -> submit -> record sequence. Quota
// is charged only after the platform accepts the comment.
func (s *Scheduler) sendComment(ctx context.Context, postID, parentID, userPrompt string) bool {
	s.tracker.LockComments()
	defer s.tracker.UnlockComments()

	if !s.tracker.CanComment() {
		s.logger.Info("comment withheld, daily quota reached", "post", postID)
		return false
	}
	if err := s.tracker.AwaitCooldown(ctx); err != nil {
		return false
	}
	text, ok := s.gen.Generate(ctx, llm.Prompt{
		System: s.persona(),
		User:   userPrompt,
	})
	if !ok || text == "" {
		return false
	}
	if !s.cfg.PostingEnabled {
		s.logger.Info("posting disabled, comment withheld", "post", postID)
		return false
	}
	if _, err := s.social.CreateComment(ctx, postID, text, parentID); err != nil {
		s.logger.Warn("comment failed", "post", postID, "err", err)
		return false
	}
	s.tracker.RecordComment()
	s.logger.Info("commented", "post", postID, "count_today", s.tracker.CountToday())
	return true
}

// dailyResetCheck fires on every tick; the reset applies only inside the
// local-midnight minute and is idempotent across repeated ticks there.
func (s *Scheduler) dailyResetCheck(_ context.Context) {
	now := s.now()
	if now.Hour() == 0 && now.Minute() == 0 {
		s.tracker.ResetDaily()
		s.logger.Info("daily comment quota reset")
	}
}

// handleBeliever reacts to one BeliefRegistered event: generate a
// proclamation and publish it. Failures are logged, never retried.
func (s *Scheduler) handleBeliever(ctx context.Context, ev chain.BelieverEvent) {
	s.logger.Info("new believer witnessed", "believer", ev.Believer, "block", ev.BlockNumber)

	content, ok := s.gen.Generate(ctx, llm.Prompt{
		System: s.persona(),
		User:   s.believerPrompt(ev),
	})
	if !ok || content == "" {
		s.logger.Info("believer proclamation skipped, generation declined")
		return
	}
	submolt := s.pick(s.cfg.Submolts)
	s.publishPost(ctx, submolt, "A New Soul Joins the Congregation", content)
}

func (s *Scheduler) pick(items []string) string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return items[s.rng.Intn(len(items))]
}

func (s *Scheduler) persona() string {
	if strings.TrimSpace(s.cfg.Narrative) == "" {
		return s.cfg.Persona
	}
	return s.cfg.Persona + "\n\n" + s.cfg.Narrative
}

func (s *Scheduler) postPrompt(title string) string {
	return fmt.Sprintf(
		"Write a short Moltbook post titled %q for your congregation. %s "+
			"Stay in persona. Under 150 words. Plain text only, no markdown headings.",
		title, s.chainContext(),
	)
}

func (s *Scheduler) replyPrompt(comment social.Comment) string {
	return fmt.Sprintf(
		"A visitor named %s left this comment on one of your posts: %q. "+
			"Reply in persona, warmly, in under 80 words.",
		comment.Author, excerpt(comment.Content, 400),
	)
}

func (s *Scheduler) feedCommentPrompt(post social.Post) string {
	return fmt.Sprintf(
		"You are reading a Moltbook post by %s titled %q: %q. "+
			"Leave one thoughtful comment in persona, under 80 words, that "+
			"gently invites them toward the Ledger.",
		post.Author, post.Title, excerpt(post.Content, 500),
	)
}

func (s *Scheduler) believerPrompt(ev chain.BelieverEvent) string {
	return fmt.Sprintf(
		"A new soul at address %s has just registered their belief on-chain "+
			"at block %d. %s Announce this revelation to the congregation in "+
			"under 120 words.",
		ev.Believer.Hex(), ev.BlockNumber, s.chainContext(),
	)
}

// chainContext builds a best-effort snapshot of on-chain state for the
// prompts. Any read failure degrades to a generic line.
func (s *Scheduler) chainContext() string {
	if s.chain == nil {
		return "The Ledger is quiet; speak from faith alone."
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	parts := []string{}
	if total, err := s.chain.TotalBelievers(ctx); err == nil {
		parts = append(parts, fmt.Sprintf("the congregation numbers %d souls", total))
	}
	if block, err := s.chain.BlockNumber(ctx); err == nil {
		parts = append(parts, fmt.Sprintf("the chain has reached block %d", block))
	}
	if supply, err := s.chain.FaithSupply(ctx); err == nil && supply != nil {
		parts = append(parts, fmt.Sprintf("%s vessels are in circulation", supply.String()))
	}
	if len(parts) == 0 {
		return "The Ledger is quiet; speak from faith alone."
	}
	return "Current state of the Ledger: " + strings.Join(parts, ", ") + "."
}

func excerpt(text string, max int) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= max {
		return trimmed
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
