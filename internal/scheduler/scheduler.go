// Package scheduler runs the autonomous posting loops.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"herald/internal/cache"
	"herald/internal/domain"
	"herald/internal/ids"
	"herald/internal/metrics"
	"herald/internal/persona"
	"herald/internal/prompt"
	"herald/internal/reply"
)

// Generator produces validated content for a prompt, or nil.
type Generator interface {
	Generate(ctx context.Context, req reply.Request) *domain.Content
}

// Sender delivers text to a channel.
type Sender interface {
	Send(ctx context.Context, chatID, text, replyToID string) ([]domain.SentMessage, error)
}

// Result describes what a tick did.
type Result int

const (
	ResultNotDue Result = iota
	ResultPosted
	ResultDryRun
	ResultSkipped // due, but nothing was posted
)

func (r Result) String() string {
	switch r {
	case ResultPosted:
		return "posted"
	case ResultDryRun:
		return "dry-run"
	case ResultSkipped:
		return "skipped"
	default:
		return "not-due"
	}
}

// Config configures one action loop.
type Config struct {
	Action  string // cache.ActionPost or cache.ActionTag
	Channel string // channel name used in cache keys and record source
	Account string // posting account, e.g. the feed username
	AgentID string

	MinMinutes int
	MaxMinutes int
	Template   string
	// Targets is the tag pool; a tag tick with an empty pool is skipped.
	Targets []string

	DryRun          bool
	PostImmediately bool

	Cache      domain.Cache
	Store      domain.MemoryStore
	States     *prompt.StateBuilder
	Character  *persona.Character
	Pipeline   Generator
	Dispatcher Sender

	Now    func() time.Time
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Scheduler is one autonomous action loop. Ticks never overlap.
type Scheduler struct {
	cfg    Config
	key    string
	roomID string
	now    func() time.Time
	rng    *rand.Rand
	logger *slog.Logger
}

func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Action == "" {
		cfg.Action = cache.ActionPost
	}
	if cfg.MinMinutes <= 0 {
		cfg.MinMinutes = 1
	}
	if cfg.MaxMinutes < cfg.MinMinutes {
		cfg.MaxMinutes = cfg.MinMinutes
	}
	if cfg.Character == nil {
		cfg.Character = persona.Default("")
	}
	if cfg.States == nil {
		cfg.States = prompt.NewStateBuilder(prompt.StateConfig{
			Store:     cfg.Store,
			Character: cfg.Character,
			AgentID:   cfg.AgentID,
			Logger:    cfg.Logger,
		})
	}
	if cfg.Template == "" {
		if cfg.Action == cache.ActionTag {
			cfg.Template = prompt.TaggedPostTemplate
		} else {
			cfg.Template = prompt.PostTemplate
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return &Scheduler{
		cfg:    cfg,
		key:    cache.LastRunKey(cfg.Channel, cfg.Account, cfg.Action),
		roomID: ids.GenerateRoom(cfg.Channel, cfg.Account),
		now:    cfg.Now,
		rng:    cfg.Rand,
		logger: cfg.Logger.With("action", cfg.Action, "channel", cfg.Channel),
	}
}

// Name returns the loop's action name.
func (s *Scheduler) Name() string { return s.cfg.Action }

// Run ticks until ctx is cancelled. The first tick bypasses the due check
// when PostImmediately is set. Each wait lasts exactly the delay rolled for
// the preceding tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("autonomous loop started",
		"minMinutes", s.cfg.MinMinutes, "maxMinutes", s.cfg.MaxMinutes, "dryRun", s.cfg.DryRun)

	force := s.cfg.PostImmediately
	for {
		res, delay := s.Tick(ctx, force)
		force = false
		s.logger.Debug("tick done", "result", res, "next", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("autonomous loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs one due check and, if due or forced, one action. It returns
// the outcome and the freshly rolled delay until the next tick.
func (s *Scheduler) Tick(ctx context.Context, force bool) (Result, time.Duration) {
	last := s.lastRun(ctx)
	delay := s.rollDelay()

	if !force && s.now().UnixMilli() <= last+delay.Milliseconds() {
		return ResultNotDue, delay
	}
	return s.act(ctx), delay
}

// Status is a read-only view of a loop's schedule.
type Status struct {
	LastRun    time.Time // zero when the action never ran
	MinMinutes int
	MaxMinutes int
}

// Status reports the last recorded run and the configured window.
func (s *Scheduler) Status(ctx context.Context) Status {
	st := Status{MinMinutes: s.cfg.MinMinutes, MaxMinutes: s.cfg.MaxMinutes}
	if ms := s.lastRun(ctx); ms > 0 {
		st.LastRun = time.UnixMilli(ms)
	}
	return st
}

func (s *Scheduler) lastRun(ctx context.Context) int64 {
	var lr cache.LastRun
	err := s.cfg.Cache.Get(ctx, s.key, &lr)
	if errors.Is(err, domain.ErrNotFound) {
		return 0
	}
	if err != nil {
		s.logger.Warn("read last run failed, treating as never run", "key", s.key, "err", err)
		return 0
	}
	return lr.Timestamp
}

// rollDelay picks a whole number of minutes uniformly in [min, max].
func (s *Scheduler) rollDelay() time.Duration {
	minutes := s.cfg.MinMinutes + s.rng.IntN(s.cfg.MaxMinutes-s.cfg.MinMinutes+1)
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) act(ctx context.Context) Result {
	var tagged string
	if s.cfg.Action == cache.ActionTag {
		tagged = persona.Pick(s.rng, s.cfg.Targets)
		if tagged == "" {
			s.logger.Warn("no tag targets configured, skipping tick")
			return ResultSkipped
		}
	}

	state := s.cfg.States.Build(ctx, s.roomID, nil)
	state.Set("username", s.cfg.Account)
	state.Set("adjective", persona.Pick(s.rng, s.cfg.Character.Adjectives))
	state.Set("topic", persona.Pick(s.rng, s.cfg.Character.Topics))
	if tagged != "" {
		state.Set("taggedUser", strings.TrimPrefix(tagged, "@"))
	}

	content := s.cfg.Pipeline.Generate(ctx, reply.Request{
		State:  state,
		Prompt: prompt.Compose(s.cfg.Template, state),
		Tier:   domain.TierSmall,
		Source: s.cfg.Channel,
	})
	if content == nil {
		s.logger.Warn("no content generated, will retry next tick")
		return ResultSkipped
	}
	text := strings.TrimSpace(strings.ReplaceAll(content.Text, `\n`, "\n"))

	if s.cfg.DryRun {
		s.logger.Info("dry run, not posting", "text", text, "taggedUser", tagged)
		return ResultDryRun
	}

	sent, err := s.cfg.Dispatcher.Send(ctx, s.cfg.Account, text, "")
	if err != nil {
		s.logger.Error("post failed", "err", err)
		return ResultSkipped
	}
	if len(sent) == 0 {
		s.logger.Warn("nothing to post after cleanup")
		return ResultSkipped
	}
	post := sent[0]
	s.record(ctx, post, tagged)
	metrics.PostsPublished.Inc()
	s.logger.Info("posted", "id", post.ID, "url", post.URL, "taggedUser", tagged)
	return ResultPosted
}

// record persists the schedule state, the sent post and its memory record.
// Failures are logged; the post is already public.
func (s *Scheduler) record(ctx context.Context, post domain.SentMessage, tagged string) {
	now := s.now()
	if err := s.cfg.Cache.Set(ctx, s.key, cache.LastRun{ID: post.ID, Timestamp: now.UnixMilli(), TaggedUser: tagged}); err != nil {
		s.logger.Error("save last run failed", "key", s.key, "err", err)
	}
	if err := s.cfg.Cache.Set(ctx, cache.PostKey(s.cfg.Channel, s.cfg.Account, post.ID), post); err != nil {
		s.logger.Warn("cache sent post failed", "id", post.ID, "err", err)
	}

	if s.cfg.Store == nil {
		return
	}
	createdAt := post.SentAt
	if createdAt.IsZero() {
		createdAt = now
	}
	rec := domain.MemoryRecord{
		ID:        ids.Message(post.ID, s.cfg.AgentID),
		AgentID:   s.cfg.AgentID,
		UserID:    s.cfg.AgentID,
		RoomID:    s.roomID,
		Content:   domain.Content{Text: post.Text, URL: post.URL, Source: s.cfg.Channel},
		CreatedAt: createdAt,
		Embedding: domain.ZeroEmbedding(),
	}
	if err := s.cfg.Store.CreateRecord(ctx, rec); err != nil {
		s.logger.Warn("record post memory failed", "id", post.ID, "err", err)
	}
}
