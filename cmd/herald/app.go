package main

import (
	"context"
	"fmt"

	"herald/internal/agent"
	"herald/internal/cache"
	"herald/internal/channel"
	"herald/internal/config"
	"herald/internal/delivery"
	"herald/internal/domain"
	"herald/internal/memory"
	"herald/internal/persona"
	"herald/internal/policy"
	"herald/internal/prompt"
	"herald/internal/provider"
	"herald/internal/reply"
	"herald/internal/scheduler"
)

// app holds the collaborators shared by every channel and loop.
type app struct {
	cfg       *config.Config
	agentID   string
	character *persona.Character

	store   *memory.SQLiteStore
	cache   domain.Cache
	closers []func()

	factory    *provider.Factory
	generator  domain.Provider
	describer  domain.ImageDescriber
	states     *prompt.StateBuilder
	sanitizer  *reply.Sanitizer
	pipeline   *reply.Pipeline
	classifier *provider.Classifier
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{cfg: cfg, agentID: cfg.AgentID()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.Agent.PersonaFile != "" {
		a.character, err = persona.Load(cfg.Agent.PersonaFile, cfg.Agent.Name)
		if err != nil {
			return nil, fmt.Errorf("persona: %w", err)
		}
	} else {
		a.character = persona.Default(cfg.Agent.Name)
	}

	a.store, err = memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	a.closers = append(a.closers, func() { a.store.Close() })

	switch cfg.Cache.Backend {
	case "postgres":
		pg, err := cache.NewPostgresCache(ctx, cfg.Cache.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("postgres cache: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		a.cache = pg
	default:
		a.cache = a.store
	}

	a.factory = provider.NewFactory(cfg, logger)
	a.generator, err = a.factory.Generator(ctx)
	if err != nil {
		return nil, err
	}
	a.describer = a.factory.Describer(ctx)
	a.classifier = provider.NewClassifier(a.generator, logger)

	a.states = prompt.NewStateBuilder(prompt.StateConfig{
		Store:        a.store,
		Character:    a.character,
		AgentID:      a.agentID,
		HistoryLimit: cfg.Memory.HistoryLimit,
		Logger:       logger,
	})
	a.sanitizer = reply.NewSanitizer(a.character.Fillers...)
	a.pipeline = reply.NewPipeline(reply.PipelineConfig{
		Generator: a.generator,
		Store:     a.store,
		Sanitizer: a.sanitizer,
		Validator: reply.NewValidator(a.character.Denylist),
		Logger:    logger,
	})
	return a, nil
}

// Close releases stores in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// handler builds the reactive handler for one chat channel.
func (a *app) handler(client domain.ChannelClient, resolver domain.AttachmentResolver, rc config.ResolvedChannel) *agent.Handler {
	return agent.NewHandler(agent.HandlerConfig{
		AgentID:              a.agentID,
		Channel:              rc.Name,
		IgnoreBotMessages:    rc.IgnoreBotMessages,
		IgnoreDirectMessages: rc.IgnoreDirectMessages,
		Store:                a.store,
		States:               a.states,
		Policy: policy.New(policy.Config{
			Handle:     a.character.Handle,
			Classifier: a.classifier,
			Template:   a.character.Template(persona.TemplateShouldRespond, prompt.ShouldRespondTemplate),
			Logger:     logger,
		}),
		Pipeline: a.pipeline,
		Dispatcher: delivery.New(delivery.Config{
			Client:    client,
			Sanitizer: a.sanitizer,
			Mode:      delivery.ModeChunk,
			Logger:    logger,
		}),
		Template:  a.character.Template(persona.TemplateMessageHandler, prompt.MessageHandlerTemplate),
		Resolver:  resolver,
		Describer: a.describer,
		Logger:    logger.With("channel", rc.Name),
	})
}

// schedulers builds the feed loops. A nil feed still yields loops that can
// report status but cannot send.
func (a *app) schedulers(feed *channel.Feed) []*scheduler.Scheduler {
	fc := a.cfg.Channels.Feed
	var sender scheduler.Sender
	account := fc.Username
	if feed != nil {
		sender = delivery.New(delivery.Config{
			Client:    feed,
			Sanitizer: a.sanitizer,
			Mode:      delivery.ModeTruncate,
			Logger:    logger,
		})
		account = feed.Username()
	}

	base := scheduler.Config{
		Channel:         "feed",
		Account:         account,
		AgentID:         a.agentID,
		DryRun:          fc.DryRun,
		PostImmediately: fc.PostImmediately,
		Cache:           a.cache,
		Store:           a.store,
		States:          a.states,
		Character:       a.character,
		Pipeline:        a.pipeline,
		Dispatcher:      sender,
		Logger:          logger,
	}

	post := base
	post.Action = cache.ActionPost
	ps := a.cfg.PostSchedule(a.character)
	post.MinMinutes, post.MaxMinutes = ps.MinMinutes, ps.MaxMinutes
	post.Template = a.character.Template(persona.TemplatePost, prompt.PostTemplate)
	loops := []*scheduler.Scheduler{scheduler.New(post)}

	if fc.Tag.Enabled {
		tag := base
		tag.Action = cache.ActionTag
		ts := a.cfg.TagSchedule(a.character)
		tag.MinMinutes, tag.MaxMinutes, tag.Targets = ts.MinMinutes, ts.MaxMinutes, ts.Targets
		tag.Template = a.character.Template(persona.TemplateTaggedPost, prompt.TaggedPostTemplate)
		loops = append(loops, scheduler.New(tag))
	}
	return loops
}

// newFeed builds the feed client from config.
func (a *app) newFeed() *channel.Feed {
	fc := a.cfg.Channels.Feed
	return channel.NewFeed(channel.FeedConfig{
		APIBase:     fc.APIBase,
		BearerToken: fc.BearerToken,
		Username:    fc.Username,
		Logger:      logger,
	})
}
