package persona

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
name: Nova Quill
handle: "@novaquill"
bio:
  - Writes about synthesizers.
topics: [modular synths, tape loops]
adjectives: [wry]
templates:
  post: "custom {{topic}}"
tagTargets: [alice, bob]
post:
  minMinutes: 30
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nova.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path, "fallback")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Name != "Nova Quill" || c.Handle != "novaquill" {
		t.Fatalf("name/handle = %q/%q", c.Name, c.Handle)
	}
	if c.Post.MinMinutes != 30 || c.Post.MaxMinutes != 0 {
		t.Fatalf("post window = %+v", c.Post)
	}
	if got := c.Template(TemplatePost, "default"); got != "custom {{topic}}" {
		t.Fatalf("Template(post) = %q", got)
	}
	if got := c.Template(TemplateTaggedPost, "default"); got != "default" {
		t.Fatalf("Template(taggedPost) = %q", got)
	}

	vars := c.Vars()
	if vars["agentName"] != "Nova Quill" || vars["bio"] != "Writes about synthesizers." {
		t.Fatalf("unexpected vars %v", vars)
	}
	if !strings.Contains(vars["topics"], "tape loops") {
		t.Fatalf("topics = %q", vars["topics"])
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatal("expected error for missing file")
	}
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad, ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestDefault(t *testing.T) {
	c := Default("Herald Bot")
	if c.Handle != "heraldbot" {
		t.Fatalf("Handle = %q", c.Handle)
	}
	if Default("").Name != "herald" {
		t.Fatal("empty name should fall back to herald")
	}
}

func TestPick(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	if Pick(r, nil) != "" {
		t.Fatal("empty list should yield empty string")
	}
	list := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		got := Pick(r, list)
		if got != "a" && got != "b" && got != "c" {
			t.Fatalf("Pick returned %q", got)
		}
	}
}
