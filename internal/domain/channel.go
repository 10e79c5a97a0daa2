package domain

import "context"

// ChannelClient sends text to a messaging surface.
// Implementations serialize their own network sends.
type ChannelClient interface {
	Name() string
	MaxMessageLength() int
	SendMessage(ctx context.Context, chatID, text string, opts SendOptions) (SentMessage, error)
}

// AttachmentResolver turns a platform attachment reference into a fetchable URL.
type AttachmentResolver interface {
	ResolveAttachmentURL(ctx context.Context, ref string) (string, error)
}

// MessageHandler receives inbound messages from a channel.
type MessageHandler interface {
	Handle(ctx context.Context, msg InboundMessage)
}
