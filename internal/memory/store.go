// Package memory persists conversation memory, audit logs and cache entries in SQLite.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"herald/internal/domain"

	_ "modernc.org/sqlite"
)

const defaultQueryLimit = 100

// SQLiteStore implements domain.MemoryStore and domain.Cache.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec domain.MemoryRecord) error {
	if rec.ID == "" {
		return errors.New("memory record without id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Embedding == nil {
		rec.Embedding = domain.ZeroEmbedding()
	}
	content, err := json.Marshal(rec.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memories (id, agent_id, user_id, room_id, content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.AgentID, rec.UserID, rec.RoomID, string(content), encodeEmbedding(rec.Embedding), rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert memory %s: %w", rec.ID, err)
	}
	return nil
}

// QueryRecords returns the newest records of roomID matching q, oldest first.
func (s *SQLiteStore) QueryRecords(ctx context.Context, roomID string, q domain.RecordQuery) ([]domain.MemoryRecord, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	query := `SELECT id, agent_id, user_id, room_id, content, embedding, created_at
		 FROM memories WHERE room_id = ?`
	args := []any{roomID}
	if q.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, q.UserID)
	}
	if !q.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, q.Since.UnixMilli())
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var recs []domain.MemoryRecord
	for rows.Next() {
		var (
			r         domain.MemoryRecord
			content   string
			embedding []byte
			createdMs int64
		)
		if err := rows.Scan(&r.ID, &r.AgentID, &r.UserID, &r.RoomID, &content, &embedding, &createdMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &r.Content); err != nil {
			s.logger.Warn("skipping memory with unreadable content", "id", r.ID, "err", err)
			continue
		}
		r.Embedding = decodeEmbedding(embedding)
		r.CreatedAt = time.UnixMilli(createdMs)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// chronological order
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (s *SQLiteStore) AppendLog(ctx context.Context, entry domain.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	body, err := json.Marshal(entry.Body)
	if err != nil {
		return fmt.Errorf("encode log body: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO logs (type, user_id, room_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Type, entry.UserID, entry.RoomID, string(body), entry.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// CountLogs returns the number of audit log rows of the given type.
func (s *SQLiteStore) CountLogs(ctx context.Context, logType string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs WHERE type = ?`, logType).Scan(&n)
	return n, err
}

// Get decodes the JSON value stored under key into dst.
func (s *SQLiteStore) Get(ctx context.Context, key string, dst any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// Set stores value as JSON under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	return GetSchemaVersion(s.db)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
