// Package persona loads the agent's character file.
package persona

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template names looked up in Character.Templates.
const (
	TemplateShouldRespond  = "shouldRespond"
	TemplateMessageHandler = "messageHandler"
	TemplatePost           = "post"
	TemplateTaggedPost     = "taggedPost"
)

// Window is an optional [min, max] minute override. Zero fields are unset.
type Window struct {
	MinMinutes int `yaml:"minMinutes"`
	MaxMinutes int `yaml:"maxMinutes"`
}

// Character describes who the agent is and how it writes.
type Character struct {
	Name           string            `yaml:"name"`
	Handle         string            `yaml:"handle"`
	Bio            []string          `yaml:"bio"`
	Lore           []string          `yaml:"lore"`
	Knowledge      []string          `yaml:"knowledge"`
	Topics         []string          `yaml:"topics"`
	Adjectives     []string          `yaml:"adjectives"`
	PostExamples   []string          `yaml:"postExamples"`
	PostDirections []string          `yaml:"postDirections"`
	Templates      map[string]string `yaml:"templates"`
	Denylist       []string          `yaml:"denylist"`
	Fillers        []string          `yaml:"fillers"`
	TagTargets     []string          `yaml:"tagTargets"`
	Post           Window            `yaml:"post"`
	Tag            Window            `yaml:"tag"`
}

// Load reads a character from a YAML file. Missing name and handle are
// filled from fallbackName.
func Load(path, fallbackName string) (*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var c Character
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	c.fill(fallbackName)
	return &c, nil
}

// Default returns a minimal character used when no persona file is configured.
func Default(name string) *Character {
	c := &Character{}
	c.fill(name)
	return c
}

func (c *Character) fill(name string) {
	if c.Name == "" {
		c.Name = name
	}
	if c.Name == "" {
		c.Name = "herald"
	}
	if c.Handle == "" {
		c.Handle = strings.ToLower(strings.ReplaceAll(c.Name, " ", ""))
	}
	c.Handle = strings.TrimPrefix(c.Handle, "@")
}

// Template returns the named template override or fallback.
func (c *Character) Template(name, fallback string) string {
	if t := strings.TrimSpace(c.Templates[name]); t != "" {
		return c.Templates[name]
	}
	return fallback
}

// Pick returns a random element of list, or "" when empty.
func Pick(r *rand.Rand, list []string) string {
	if len(list) == 0 {
		return ""
	}
	if r == nil {
		return list[rand.IntN(len(list))]
	}
	return list[r.IntN(len(list))]
}

// Vars returns the character's template variables.
func (c *Character) Vars() map[string]string {
	return map[string]string{
		"agentName":             c.Name,
		"agent":                 c.Name,
		"handle":                c.Handle,
		"bio":                   strings.Join(c.Bio, "\n"),
		"lore":                  strings.Join(c.Lore, "\n"),
		"knowledge":             bulletList(c.Knowledge),
		"topics":                topicsLine(c.Name, c.Topics),
		"characterPostExamples": examples(c.Name, c.PostExamples),
		"postDirections":        bulletList(c.PostDirections),
	}
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func topicsLine(name string, topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	return name + " is interested in " + strings.Join(topics, ", ")
}

func examples(name string, posts []string) string {
	if len(posts) == 0 {
		return ""
	}
	return "# Example posts for " + name + ":\n" + strings.Join(posts, "\n")
}
