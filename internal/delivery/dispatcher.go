// Package delivery sends validated text through a channel client.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"herald/internal/chunk"
	"herald/internal/domain"
	"herald/internal/metrics"
	"herald/internal/reply"
)

// Mode selects how text is fitted to the channel limit.
type Mode int

const (
	// ModeChunk splits on line boundaries and sends the first chunk.
	ModeChunk Mode = iota
	// ModeTruncate shortens to a sentence boundary; used for the public feed.
	ModeTruncate
)

// Config configures a Dispatcher.
type Config struct {
	Client    domain.ChannelClient
	Sanitizer *reply.Sanitizer
	Mode      Mode
	// MaxLength overrides Client.MaxMessageLength when positive.
	MaxLength int
	Logger    *slog.Logger
}

type Dispatcher struct {
	client    domain.ChannelClient
	sanitizer *reply.Sanitizer
	mode      Mode
	maxLen    int
	logger    *slog.Logger
}

func New(cfg Config) *Dispatcher {
	if cfg.Sanitizer == nil {
		cfg.Sanitizer = reply.NewSanitizer()
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = cfg.Client.MaxMessageLength()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		client:    cfg.Client,
		sanitizer: cfg.Sanitizer,
		mode:      cfg.Mode,
		maxLen:    cfg.MaxLength,
		logger:    cfg.Logger,
	}
}

// Channel returns the name of the underlying client.
func (d *Dispatcher) Channel() string { return d.client.Name() }

// Send sanitizes text, fits it to the channel and sends it. Empty or
// placeholder text is a no-op returning no records. Only the first chunk of
// a multi-chunk reply is sent.
func (d *Dispatcher) Send(ctx context.Context, chatID, text, replyToID string) ([]domain.SentMessage, error) {
	if isPlaceholder(strings.TrimSpace(text)) {
		d.logger.Debug("nothing to deliver", "channel", d.client.Name(), "chat", chatID)
		return nil, nil
	}
	text = d.sanitizer.Sanitize(text)
	if isPlaceholder(text) {
		d.logger.Debug("nothing to deliver", "channel", d.client.Name(), "chat", chatID)
		return nil, nil
	}

	var out string
	switch d.mode {
	case ModeTruncate:
		out = chunk.Truncate(text, d.maxLen)
	default:
		chunks := chunk.Split(text, d.maxLen)
		if len(chunks) > 1 {
			d.logger.Info("reply spans multiple chunks, sending first only",
				"channel", d.client.Name(), "chat", chatID, "chunks", len(chunks))
		}
		out = chunks[0]
	}

	sent, err := d.client.SendMessage(ctx, chatID, out, domain.SendOptions{ReplyToID: replyToID})
	if err != nil {
		metrics.DeliveryFailures.Inc()
		return nil, fmt.Errorf("send to %s: %w", d.client.Name(), err)
	}
	return []domain.SentMessage{sent}, nil
}

// isPlaceholder reports whether text is empty or only ellipsis marks.
// Sanitizing collapses "..." to ".", so a lone "." counts too.
func isPlaceholder(text string) bool {
	return strings.Trim(text, ".…") == ""
}
