// Package sqlite provides the durable single-file storage backend. One
// Store implements every persistence port, sharing a WAL-mode database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mentatlabs/mentat/internal/domain"
)

type Store struct {
	db *sql.DB
}

// New opens the database at dbPath, creating parent directories and the
// schema as needed.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// WAL for concurrent readers alongside the single writer.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// listLimit maps the ports' "limit <= 0 means all" convention onto sqlite,
// where LIMIT 0 returns nothing and LIMIT -1 means unbounded.
func listLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS session_states (
		conversation_id TEXT PRIMARY KEY,
		state           TEXT NOT NULL,
		updated_at      INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS personas (
		user_id    TEXT PRIMARY KEY,
		persona    TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		description TEXT NOT NULL,
		status      TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		due_date    INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		entry           TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_user ON journal_entries(user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author          TEXT NOT NULL,
		text            TEXT NOT NULL,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// --- StateStore ---

func (s *Store) LoadSessionState(ctx context.Context, id domain.ConversationID) (domain.SessionState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM session_states WHERE conversation_id = ?`, string(id)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionState{}, fmt.Errorf("session state for %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("load session state: %w", err)
	}
	var state domain.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session state for %s: %w", id, err)
	}
	return state, nil
}

func (s *Store) SaveSessionState(ctx context.Context, state domain.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_states (conversation_id, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		string(state.ConversationID), string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

// --- PersonaStore ---

func (s *Store) LoadPersona(ctx context.Context, userID domain.UserID) (domain.Persona, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT persona FROM personas WHERE user_id = ?`, string(userID)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		// No persona yet is normal for a new user.
		return domain.Persona{}, nil
	}
	if err != nil {
		return domain.Persona{}, fmt.Errorf("load persona: %w", err)
	}
	var p domain.Persona
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Persona{}, fmt.Errorf("decode persona for %s: %w", userID, err)
	}
	return p, nil
}

func (s *Store) SavePersona(ctx context.Context, userID domain.UserID, p domain.Persona) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode persona: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO personas (user_id, persona, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET persona = excluded.persona, updated_at = excluded.updated_at`,
		string(userID), string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	return nil
}

// --- GoalStore ---

func (s *Store) SaveGoal(ctx context.Context, goal *domain.Goal) error {
	var due *int64
	if goal.DueDate != nil {
		v := goal.DueDate.Unix()
		due = &v
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, description, status, created_at, updated_at, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			status = excluded.status,
			updated_at = excluded.updated_at,
			due_date = excluded.due_date`,
		goal.ID, string(goal.UserID), goal.Description, string(goal.Status),
		goal.CreatedAt.Unix(), goal.UpdatedAt.Unix(), due)
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (s *Store) ListGoalsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, description, status, created_at, updated_at, due_date
		FROM goals WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`,
		string(userID), listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		var (
			g                    domain.Goal
			uid, status          string
			createdAt, updatedAt int64
			due                  sql.NullInt64
		)
		if err := rows.Scan(&g.ID, &uid, &g.Description, &status, &createdAt, &updatedAt, &due); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		g.UserID = domain.UserID(uid)
		g.Status = domain.GoalStatus(status)
		g.CreatedAt = time.Unix(createdAt, 0).UTC()
		g.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		if due.Valid {
			t := time.Unix(due.Int64, 0).UTC()
			g.DueDate = &t
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

// --- JournalStore ---

func (s *Store) AppendJournalEntry(ctx context.Context, entry *domain.JournalEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, conversation_id, user_id, entry, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(entry.ID), string(entry.ConversationID), string(entry.UserID),
		string(raw), entry.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

func (s *Store) ListJournalEntriesByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry FROM journal_entries WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`,
		string(userID), listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.JournalEntry
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		var e domain.JournalEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode journal entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// --- ConversationStore ---

func (s *Store) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(conv.ID), string(conv.UserID), conv.Title,
		conv.CreatedAt.Unix(), conv.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Store) UpdateConversation(ctx context.Context, conv *domain.Conversation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		conv.Title, conv.UpdatedAt.Unix(), string(conv.ID))
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id domain.ConversationID) (*domain.Conversation, error) {
	var (
		conv                 domain.Conversation
		cid, uid             string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE id = ?`, string(id)).
		Scan(&cid, &uid, &conv.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.ID = domain.ConversationID(cid)
	conv.UserID = domain.UserID(uid)
	conv.CreatedAt = time.Unix(createdAt, 0).UTC()
	conv.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &conv, nil
}

func (s *Store) ListConversationsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, created_at, updated_at
		FROM conversations WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`,
		string(userID), listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		var (
			conv                 domain.Conversation
			cid, uid             string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&cid, &uid, &conv.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conv.ID = domain.ConversationID(cid)
		conv.UserID = domain.UserID(uid)
		conv.CreatedAt = time.Unix(createdAt, 0).UTC()
		conv.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}

// --- MessageStore ---

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, author, text, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(msg.ID), string(msg.ConversationID), string(msg.Author),
		msg.Text, msg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, id domain.ConversationID, limit int) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, author, text, created_at FROM (
			SELECT id, conversation_id, author, text, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`,
		string(id), listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		var (
			msg            domain.Message
			mid, cid, role string
			createdAt      int64
		)
		if err := rows.Scan(&mid, &cid, &role, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.ID = domain.MessageID(mid)
		msg.ConversationID = domain.ConversationID(cid)
		msg.Author = domain.Role(role)
		msg.CreatedAt = time.Unix(0, createdAt).UTC()
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
