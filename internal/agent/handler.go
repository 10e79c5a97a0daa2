// Package agent handles inbound chat messages end to end.
package agent

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"herald/internal/domain"
	"herald/internal/ids"
	"herald/internal/metrics"
	"herald/internal/prompt"
	"herald/internal/reply"
)

// Decider is the respond policy.
type Decider interface {
	Decide(ctx context.Context, msg domain.InboundMessage, state *domain.ConversationState) domain.Decision
}

// Generator produces validated reply content, or nil.
type Generator interface {
	Generate(ctx context.Context, req reply.Request) *domain.Content
}

// Sender delivers reply text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID, text, replyToID string) ([]domain.SentMessage, error)
}

// HandlerConfig holds a Handler's collaborators and flags.
type HandlerConfig struct {
	AgentID string
	Channel string // recorded as content source

	IgnoreBotMessages    bool
	IgnoreDirectMessages bool

	Store      domain.MemoryStore
	States     *prompt.StateBuilder
	Policy     Decider
	Pipeline   Generator
	Dispatcher Sender
	// Template renders the reply prompt; defaults to prompt.MessageHandlerTemplate.
	Template string

	// Optional image description; the result is logged only.
	Resolver  domain.AttachmentResolver
	Describer domain.ImageDescriber

	Logger *slog.Logger
}

// Handler processes one inbound message at a time. Messages arriving while
// a turn is in flight are dropped, not queued.
type Handler struct {
	busy atomic.Bool

	agentID    string
	channel    string
	ignoreBots bool
	ignoreDMs  bool
	store      domain.MemoryStore
	states     *prompt.StateBuilder
	policy     Decider
	pipeline   Generator
	dispatcher Sender
	template   string
	resolver   domain.AttachmentResolver
	describer  domain.ImageDescriber
	logger     *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Template == "" {
		cfg.Template = prompt.MessageHandlerTemplate
	}
	if cfg.States == nil {
		cfg.States = prompt.NewStateBuilder(prompt.StateConfig{Store: cfg.Store, AgentID: cfg.AgentID, Logger: cfg.Logger})
	}
	return &Handler{
		agentID:    cfg.AgentID,
		channel:    cfg.Channel,
		ignoreBots: cfg.IgnoreBotMessages,
		ignoreDMs:  cfg.IgnoreDirectMessages,
		store:      cfg.Store,
		states:     cfg.States,
		policy:     cfg.Policy,
		pipeline:   cfg.Pipeline,
		dispatcher: cfg.Dispatcher,
		template:   cfg.Template,
		resolver:   cfg.Resolver,
		describer:  cfg.Describer,
		logger:     cfg.Logger.With("channel", cfg.Channel),
	}
}

// Busy reports whether a turn is in flight.
func (h *Handler) Busy() bool { return h.busy.Load() }

// Handle implements domain.MessageHandler. It is safe to call concurrently.
func (h *Handler) Handle(ctx context.Context, msg domain.InboundMessage) {
	if h.busy.Load() {
		metrics.MessagesDropped.Inc()
		return
	}
	if msg.SenderID == "" {
		return
	}
	if h.ignoreBots && msg.SenderIsBot {
		return
	}
	if h.ignoreDMs && msg.ChatType == domain.ChatDirect {
		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		metrics.MessagesDropped.Inc()
		return
	}
	defer h.busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while handling message", "chat", msg.ChatID, "panic", r)
		}
	}()

	h.process(ctx, msg)
}

func (h *Handler) process(ctx context.Context, msg domain.InboundMessage) {
	metrics.MessagesReceived.Inc()

	roomID := ids.Room(msg.ChatID, h.agentID)
	messageID := ids.Message(msg.ID, h.agentID)

	h.describeImage(ctx, msg)

	body := msg.Body()
	if body == "" {
		return
	}

	content := domain.Content{Text: body, Author: msg.SenderName, Source: h.channel}
	if msg.ReplyToID != "" {
		content.InReplyTo = ids.Message(msg.ReplyToID, h.agentID)
	}
	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	inbound := domain.MemoryRecord{
		ID:        messageID,
		AgentID:   h.agentID,
		UserID:    ids.User(msg.SenderID),
		RoomID:    roomID,
		Content:   content,
		CreatedAt: createdAt,
		Embedding: domain.ZeroEmbedding(),
	}
	if err := h.store.CreateRecord(ctx, inbound); err != nil {
		h.logger.Warn("record inbound message failed", "room", roomID, "err", err)
	}

	state := h.states.Build(ctx, roomID, &inbound)

	decision := h.policy.Decide(ctx, msg, state)
	metrics.Decision(decision.String()).Inc()
	if decision != domain.DecisionRespond {
		h.logger.Debug("not responding", "chat", msg.ChatID, "decision", decision)
		return
	}

	out := h.pipeline.Generate(ctx, reply.Request{
		Trigger: &inbound,
		State:   state,
		Prompt:  prompt.Compose(h.template, state),
		Tier:    domain.TierLarge,
		Source:  h.channel,
	})
	if out == nil {
		return
	}

	sent, err := h.dispatcher.Send(ctx, msg.ChatID, out.Text, msg.ID)
	if err != nil {
		h.logger.Error("deliver reply failed", "chat", msg.ChatID, "err", err)
		return
	}

	for _, s := range sent {
		at := s.SentAt
		if at.IsZero() {
			at = time.Now()
		}
		rec := domain.MemoryRecord{
			ID:      ids.Message(s.ID, h.agentID),
			AgentID: h.agentID,
			UserID:  h.agentID,
			RoomID:  roomID,
			Content: domain.Content{
				Text:      s.Text,
				Source:    h.channel,
				URL:       s.URL,
				Action:    out.Action,
				InReplyTo: messageID,
			},
			CreatedAt: at,
			Embedding: domain.ZeroEmbedding(),
		}
		if err := h.store.CreateRecord(ctx, rec); err != nil {
			h.logger.Warn("record reply failed", "room", roomID, "err", err)
		}
	}
	metrics.RepliesSent.Add(int64(len(sent)))
}

// describeImage resolves and describes an image attachment. The description
// is not fed into the reply.
func (h *Handler) describeImage(ctx context.Context, msg domain.InboundMessage) {
	if h.resolver == nil || h.describer == nil || !msg.Attachment.IsImage() {
		return
	}
	url, err := h.resolver.ResolveAttachmentURL(ctx, msg.Attachment.Ref)
	if err != nil {
		h.logger.Warn("resolve attachment failed", "chat", msg.ChatID, "err", err)
		return
	}
	desc, err := h.describer.Describe(ctx, url)
	if err != nil {
		h.logger.Warn("describe image failed", "chat", msg.ChatID, "err", err)
		return
	}
	h.logger.Debug("image described", "chat", msg.ChatID, "title", desc.Title)
}
