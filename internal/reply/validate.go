package reply

import (
	"errors"
	"fmt"
	"strings"
)

const (
	recentReplyWindow  = 3
	maxDenylistMatches = 2
)

// DefaultDenylist holds stock phrases and markers that signal template-leaked output.
var DefaultDenylist = []string{
	"Oh, darling",
	"Let's create",
	"digital mayhem",
	"🚨", "🖼", "✨",
}

var (
	ErrDuplicate = errors.New("duplicate of a recent reply")
	ErrTemplate  = errors.New("too many stock phrases")
)

// Validator rejects duplicate or template-heavy candidates.
type Validator struct {
	denylist []string
}

// NewValidator returns a validator over denylist, or DefaultDenylist when empty.
func NewValidator(denylist []string) *Validator {
	if len(denylist) == 0 {
		denylist = DefaultDenylist
	}
	return &Validator{denylist: denylist}
}

// Validate returns nil when text may be sent. recent holds prior agent
// replies of the room, oldest first; only the last three are compared.
func (v *Validator) Validate(text string, recent []string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("empty reply")
	}
	if len(recent) > recentReplyWindow {
		recent = recent[len(recent)-recentReplyWindow:]
	}
	for _, r := range recent {
		if r == text {
			return ErrDuplicate
		}
	}
	if n := v.Matches(text); n > maxDenylistMatches {
		return fmt.Errorf("%w: %d matches", ErrTemplate, n)
	}
	return nil
}

// Matches counts denylist entries that occur in text.
func (v *Validator) Matches(text string) int {
	n := 0
	for _, p := range v.denylist {
		if strings.Contains(text, p) {
			n++
		}
	}
	return n
}
