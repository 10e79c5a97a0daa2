package domain

import (
	"context"
	"errors"
	"time"
)

// EmbeddingDimension is the length of the zero vector stored with records.
const EmbeddingDimension = 384

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// Content is the payload of a memory record or a generated reply.
type Content struct {
	Text      string `json:"text"`
	Author    string `json:"author,omitempty"`
	Source    string `json:"source,omitempty"`
	URL       string `json:"url,omitempty"`
	Action    string `json:"action,omitempty"`
	InReplyTo string `json:"inReplyTo,omitempty"`
}

// MemoryRecord is the persisted unit of conversation memory. Never mutated after creation.
type MemoryRecord struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Embedding []float32 `json:"-"`
}

// ZeroEmbedding returns an all-zero embedding vector.
func ZeroEmbedding() []float32 {
	return make([]float32, EmbeddingDimension)
}

// RecordQuery filters QueryRecords. Zero values mean "no filter".
type RecordQuery struct {
	Limit  int
	UserID string
	Since  time.Time
}

// LogEntry is an audit log row (inputs, prompt, output of a generation).
type LogEntry struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	RoomID    string    `json:"room_id"`
	Body      any       `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStore persists memory records and audit logs.
type MemoryStore interface {
	CreateRecord(ctx context.Context, rec MemoryRecord) error
	// QueryRecords returns the most recent records of a room, oldest first.
	QueryRecords(ctx context.Context, roomID string, q RecordQuery) ([]MemoryRecord, error)
	AppendLog(ctx context.Context, entry LogEntry) error
	Close() error
}

// Cache is a JSON key-value store. Get returns ErrNotFound for absent keys.
type Cache interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any) error
}
