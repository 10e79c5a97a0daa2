package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"herald/internal/domain"
	"herald/internal/persona"
)

const defaultHistoryLimit = 20

// StateBuilder rebuilds per-room conversation state from stored memory.
type StateBuilder struct {
	store        domain.MemoryStore
	character    *persona.Character
	agentID      string
	historyLimit int
	logger       *slog.Logger
}

// StateConfig configures a StateBuilder.
type StateConfig struct {
	Store        domain.MemoryStore
	Character    *persona.Character
	AgentID      string
	HistoryLimit int
	Logger       *slog.Logger
}

func NewStateBuilder(cfg StateConfig) *StateBuilder {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.Character == nil {
		cfg.Character = persona.Default("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StateBuilder{
		store:        cfg.Store,
		character:    cfg.Character,
		agentID:      cfg.AgentID,
		historyLimit: cfg.HistoryLimit,
		logger:       cfg.Logger,
	}
}

// Build composes state for roomID. current is the message being answered,
// or nil for autonomous posts. A failed history read yields an empty window.
func (b *StateBuilder) Build(ctx context.Context, roomID string, current *domain.MemoryRecord) *domain.ConversationState {
	state := &domain.ConversationState{RoomID: roomID, AgentID: b.agentID}
	for k, v := range b.character.Vars() {
		state.Set(k, v)
	}

	if b.store != nil && roomID != "" {
		recs, err := b.store.QueryRecords(ctx, roomID, domain.RecordQuery{Limit: b.historyLimit})
		if err != nil {
			b.logger.Warn("load conversation history failed", "room", roomID, "err", err)
		}
		for _, r := range recs {
			if current != nil && r.ID == current.ID {
				continue
			}
			state.Turns = append(state.Turns, b.turn(r))
		}
	}

	state.Set("recentMessages", formatTurns(state.Turns))
	if current != nil {
		state.Set("formattedConversation", formatTurn(b.turn(*current)))
	}
	return state
}

func (b *StateBuilder) turn(r domain.MemoryRecord) domain.Turn {
	t := domain.Turn{Role: domain.RoleOther, Author: r.Content.Author, Text: r.Content.Text, At: r.CreatedAt}
	if r.UserID == b.agentID {
		t.Role = domain.RoleAgent
		t.Author = b.character.Name
	}
	if t.Author == "" {
		t.Author = "user"
	}
	return t
}

func formatTurn(t domain.Turn) string {
	return fmt.Sprintf("%s: %s", t.Author, t.Text)
}

func formatTurns(turns []domain.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, formatTurn(t))
	}
	return strings.Join(lines, "\n")
}
