package domain

import "time"

// Role identifies who authored a conversational turn.
type Role string

const (
	RoleAgent Role = "agent"
	RoleOther Role = "other"
)

// Turn is one entry of the rolling conversation window.
type Turn struct {
	Role   Role
	Author string
	Text   string
	At     time.Time
}

// ConversationState is the per-room context rebuilt for each generation.
type ConversationState struct {
	RoomID  string
	AgentID string
	Turns   []Turn
	Vars    map[string]string
}

// Set stores a template substitution variable.
func (s *ConversationState) Set(key, value string) {
	if s.Vars == nil {
		s.Vars = make(map[string]string)
	}
	s.Vars[key] = value
}

// Get returns a template variable or "".
func (s *ConversationState) Get(key string) string {
	return s.Vars[key]
}

// AgentReplies returns the texts of the last n agent turns, oldest first.
func (s *ConversationState) AgentReplies(n int) []string {
	if s == nil || n <= 0 {
		return nil
	}
	var out []string
	for i := len(s.Turns) - 1; i >= 0 && len(out) < n; i-- {
		if s.Turns[i].Role == RoleAgent {
			out = append(out, s.Turns[i].Text)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
