package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/cortexlab/cortex/internal/model"
)

// Fixed-width UTC timestamps sort correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		grade       TEXT NOT NULL DEFAULT '',
		subject     TEXT NOT NULL DEFAULT '',
		tool        TEXT NOT NULL DEFAULT '',
		model       TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at DESC);

	CREATE TABLE IF NOT EXISTS turns (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		seq         INTEGER NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT NOT NULL,
		pack_id     TEXT,
		created_at  TEXT NOT NULL,
		UNIQUE (session_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS response_cache (
		key         TEXT PRIMARY KEY,
		grade       TEXT NOT NULL,
		tool        TEXT NOT NULL,
		response    TEXT NOT NULL,
		pack_id     TEXT,
		hits        INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		expires_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON response_cache(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Create(ctx context.Context, p CreateParams) (*Session, error) {
	now := time.Now().UTC()
	sess := &Session{
		ID:        s.newID(),
		Title:     defaultTitle,
		Grade:     p.Grade,
		Subject:   p.Subject,
		Tool:      p.Tool,
		Model:     p.Model,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, grade, subject, tool, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Grade, sess.Subject, sess.Tool, sess.Model,
		now.Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, p AppendParams) (*Turn, error) {
	if !model.ValidRoles[p.Role] {
		return nil, fmt.Errorf("invalid role %q", p.Role)
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var seq, userTurns int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0), COUNT(CASE WHEN role = 'user' THEN 1 END)
		 FROM turns WHERE session_id = ?`, p.SessionID).Scan(&seq, &userTurns)
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		now.Format(timeFormat), p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p.SessionID)
	}

	if p.Role == model.RoleUser && userTurns == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE sessions SET title = ? WHERE id = ?`,
			TitleFrom(p.Content), p.SessionID); err != nil {
			return nil, fmt.Errorf("set title: %w", err)
		}
	}

	turn := &Turn{
		ID:        s.newID(),
		SessionID: p.SessionID,
		Seq:       seq + 1,
		Role:      p.Role,
		Content:   p.Content,
		PackID:    p.PackID,
		CreatedAt: now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, seq, role, content, pack_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Seq, string(turn.Role), turn.Content, nullable(turn.PackID),
		now.Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return turn, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, grade, subject, tool, model, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, seq, role, content, pack_id, created_at
		 FROM turns WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		sess.Turns = append(sess.Turns, t)
	}
	return sess, rows.Err()
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]Summary, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.title, s.grade, s.subject, s.updated_at,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id),
		       COALESCE((SELECT t.content FROM turns t WHERE t.session_id = s.id ORDER BY t.seq DESC LIMIT 1), '')
		FROM sessions s
		ORDER BY s.updated_at DESC, s.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var updated, last string
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Grade, &sum.Subject, &updated, &sum.TurnCount, &last); err != nil {
			return nil, err
		}
		sum.UpdatedAt, _ = time.Parse(timeFormat, updated)
		sum.Preview = PreviewFrom(last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*Session, error) {
	var sess Session
	var created, updated string
	if err := row.Scan(&sess.ID, &sess.Title, &sess.Grade, &sess.Subject, &sess.Tool, &sess.Model, &created, &updated); err != nil {
		return nil, err
	}
	sess.CreatedAt, _ = time.Parse(timeFormat, created)
	sess.UpdatedAt, _ = time.Parse(timeFormat, updated)
	return &sess, nil
}

func scanTurn(row scanner) (Turn, error) {
	var t Turn
	var role, created string
	var packID sql.NullString
	if err := row.Scan(&t.ID, &t.SessionID, &t.Seq, &role, &t.Content, &packID, &created); err != nil {
		return t, err
	}
	t.Role = model.Role(role)
	if packID.Valid {
		t.PackID = packID.String
	}
	t.CreatedAt, _ = time.Parse(timeFormat, created)
	return t, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
