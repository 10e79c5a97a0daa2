package domain

import (
	"strings"
	"time"
)

// ChatType classifies the surface a message arrived on.
type ChatType string

const (
	ChatDirect ChatType = "direct" // private one-to-one
	ChatGroup  ChatType = "group"
	ChatPublic ChatType = "public"
)

// Attachment references an uploaded file on the originating platform.
type Attachment struct {
	Ref      string // platform file id or URL
	MimeType string
	Kind     string // photo | document | file
}

// IsImage reports whether the attachment is a photo or an image/* document.
func (a *Attachment) IsImage() bool {
	if a == nil {
		return false
	}
	return a.Kind == "photo" || strings.HasPrefix(a.MimeType, "image/")
}

// InboundMessage is a message received from a channel. Immutable once received.
type InboundMessage struct {
	ID          string
	Channel     string
	ChatID      string
	ChatType    ChatType
	SenderID    string
	SenderName  string
	SenderIsBot bool
	Text        string
	Caption     string
	Attachment  *Attachment
	ReplyToID   string
	Timestamp   time.Time
}

// Body returns the message text, falling back to the caption.
func (m InboundMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// SendOptions carries per-send delivery hints.
type SendOptions struct {
	ReplyToID string
}

// SentMessage is the record a channel returns for a delivered message.
type SentMessage struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id,omitempty"`
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	ReplyToID string    `json:"reply_to_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
