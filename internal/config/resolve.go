package config

import (
	"herald/internal/ids"
	"herald/internal/persona"
)

// ResolvedSchedule is the effective window and target pool for one
// autonomous action, evaluated once per invocation.
type ResolvedSchedule struct {
	MinMinutes int
	MaxMinutes int
	Targets    []string
}

// ResolvedChannel is the effective filter set for one chat channel.
type ResolvedChannel struct {
	Name                 string
	IgnoreBotMessages    bool
	IgnoreDirectMessages bool
}

// PostSchedule resolves the feed post window: feed config, then persona,
// then the system default.
func (c *Config) PostSchedule(ch *persona.Character) ResolvedSchedule {
	var fromPersona persona.Window
	if ch != nil {
		fromPersona = ch.Post
	}
	minM, maxM := resolveWindow(
		c.Channels.Feed.Post.MinMinutes, c.Channels.Feed.Post.MaxMinutes,
		fromPersona,
		DefaultPostMinMinutes, DefaultPostMaxMinutes,
	)
	return ResolvedSchedule{MinMinutes: minM, MaxMinutes: maxM}
}

// TagSchedule resolves the tagged-post window and target pool. Targets
// from config replace the persona's list rather than merging with it.
func (c *Config) TagSchedule(ch *persona.Character) ResolvedSchedule {
	var fromPersona persona.Window
	var targets []string
	if ch != nil {
		fromPersona = ch.Tag
		targets = ch.TagTargets
	}
	tag := c.Channels.Feed.Tag
	if len(tag.Targets) > 0 {
		targets = []string(tag.Targets)
	}
	minM, maxM := resolveWindow(tag.MinMinutes, tag.MaxMinutes, fromPersona, DefaultTagMinMinutes, DefaultTagMaxMinutes)
	return ResolvedSchedule{MinMinutes: minM, MaxMinutes: maxM, Targets: targets}
}

// resolveWindow picks each bound from the first layer that sets it. A max
// below the resolved min is raised to min.
func resolveWindow(cfgMin, cfgMax int, p persona.Window, defMin, defMax int) (int, int) {
	minM := firstPositive(cfgMin, p.MinMinutes, defMin)
	maxM := firstPositive(cfgMax, p.MaxMinutes, defMax)
	if maxM < minM {
		maxM = minM
	}
	return minM, maxM
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// Telegram resolves the telegram channel filters.
func (c *Config) Telegram() ResolvedChannel {
	t := c.Channels.Telegram
	return ResolvedChannel{Name: "telegram", IgnoreBotMessages: t.IgnoreBotMessages, IgnoreDirectMessages: t.IgnoreDirectMessages}
}

// Discord resolves the discord channel filters.
func (c *Config) Discord() ResolvedChannel {
	d := c.Channels.Discord
	return ResolvedChannel{Name: "discord", IgnoreBotMessages: d.IgnoreBotMessages, IgnoreDirectMessages: d.IgnoreDirectMessages}
}

// AgentID returns the configured agent id, or one derived from the name.
func (c *Config) AgentID() string {
	if c.Agent.ID != "" {
		return c.Agent.ID
	}
	return ids.FromString(c.Agent.Name)
}
