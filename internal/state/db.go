// Package state persists prompt runs in a SQLite database kept alongside
// the project. Each executed script becomes a session row with token and
// cost totals, plus a JSON snapshot of the conversation so a run can be
// inspected after the fact. A small kv table holds durable settings such
// as stored API keys.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/exedev/beeline/internal/conv"
)

// DB is the SQLite-backed run store.
type DB struct {
	db   *sql.DB
	path string
}

// OpenDB opens (or creates) the beeline database under dir.
func OpenDB(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	dbPath := filepath.Join(dir, "beeline.db")
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Single connection for writes, WAL allows concurrent reads
	db.SetMaxOpenConns(2)

	s := &DB{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *DB) migrate() error {
	ddl := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		script      TEXT NOT NULL,
		provider    TEXT,
		model       TEXT,
		status      TEXT NOT NULL DEFAULT 'running',
		tokens_in   INTEGER NOT NULL DEFAULT 0,
		tokens_out  INTEGER NOT NULL DEFAULT 0,
		cost        REAL NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		session_id  TEXT PRIMARY KEY,
		data        TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT
	);
	`
	_, err := s.db.Exec(ddl)
	return err
}

// --- Session operations ---

type Session struct {
	ID        string  `json:"id"`
	Script    string  `json:"script"`
	Provider  string  `json:"provider"`
	Model     string  `json:"model"`
	Status    string  `json:"status"`
	TokensIn  int     `json:"tokens_in"`
	TokensOut int     `json:"tokens_out"`
	Cost      float64 `json:"cost"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// NewSessionID derives a unique run identifier from the wall clock.
func NewSessionID() string {
	return fmt.Sprintf("run-%d", time.Now().UnixNano())
}

func (s *DB) CreateSession(id, script string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, script, status, created_at, updated_at) VALUES (?, ?, 'running', ?, ?)`,
		id, script, now, now,
	)
	return err
}

// UpdateSessionModel records which model a session bound. A script can
// switch models mid-run; the row keeps the most recent binding.
func (s *DB) UpdateSessionModel(id, provider, model string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`UPDATE sessions SET provider = ?, model = ?, updated_at = ? WHERE id = ?`,
		provider, model, now, id,
	)
	return err
}

// FinishSession closes out a run with its final status and usage totals.
func (s *DB) FinishSession(id, status string, tokensIn, tokensOut int, cost float64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, tokens_in = ?, tokens_out = ?, cost = ?, updated_at = ? WHERE id = ?`,
		status, tokensIn, tokensOut, cost, now, id,
	)
	return err
}

func (s *DB) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, script, COALESCE(provider, ''), COALESCE(model, ''), status, tokens_in, tokens_out, cost, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	return scanSession(row)
}

func (s *DB) LatestSession() (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, script, COALESCE(provider, ''), COALESCE(model, ''), status, tokens_in, tokens_out, cost, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT 1`)
	return scanSession(row)
}

// ListSessions returns the most recent sessions, newest first.
func (s *DB) ListSessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, script, COALESCE(provider, ''), COALESCE(model, ''), status, tokens_in, tokens_out, cost, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		si, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *si)
	}
	return sessions, rows.Err()
}

// --- Conversation snapshots ---

// conversationBlob is the stored shape of a conversation. Variables are
// not persisted; they belong to the invocation, not the transcript.
type conversationBlob struct {
	Provider  string          `json:"provider,omitempty"`
	Model     string          `json:"model,omitempty"`
	TokensIn  int             `json:"tokens_in"`
	TokensOut int             `json:"tokens_out"`
	Messages  []*conv.Message `json:"messages"`
}

// SaveConversation stores a JSON snapshot of the conversation for a
// session, replacing any previous snapshot.
func (s *DB) SaveConversation(sessionID string, c *conv.Conversation) error {
	blob := conversationBlob{
		Provider:  c.Provider,
		Model:     c.Model,
		TokensIn:  c.TokensIn,
		TokensOut: c.TokensOut,
		Messages:  c.Messages,
	}
	b, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO conversations (session_id, data, updated_at) VALUES (?, ?, ?)`,
		sessionID, string(b), now,
	)
	return err
}

// LoadConversation reconstitutes the stored conversation for a session.
func (s *DB) LoadConversation(sessionID string) (*conv.Conversation, error) {
	var data string
	err := s.db.QueryRow(
		`SELECT data FROM conversations WHERE session_id = ?`, sessionID,
	).Scan(&data)
	if err != nil {
		return nil, err
	}
	var blob conversationBlob
	if err := json.Unmarshal([]byte(data), &blob); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", sessionID, err)
	}
	return &conv.Conversation{
		Messages:  blob.Messages,
		TokensIn:  blob.TokensIn,
		TokensOut: blob.TokensOut,
		Provider:  blob.Provider,
		Model:     blob.Model,
	}, nil
}

// --- KV (general purpose) ---

func (s *DB) SetKV(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value)
	return err
}

func (s *DB) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	return value, err
}

func (s *DB) DeleteKV(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// --- Lifecycle ---

func (s *DB) Close() error {
	return s.db.Close()
}

func (s *DB) Raw() *sql.DB {
	return s.db
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scannable) (*Session, error) {
	var si Session
	err := row.Scan(
		&si.ID, &si.Script, &si.Provider, &si.Model, &si.Status,
		&si.TokensIn, &si.TokensOut, &si.Cost, &si.CreatedAt, &si.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &si, nil
}
