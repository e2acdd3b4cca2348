package session

import (
	"context"
	"fmt"
)

// ExportAll returns every session with its turns, oldest first.
func (s *SQLiteStore) ExportAll(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, nil
}

// Import stores sessions from an export, keeping their ids and timestamps.
// Sessions whose id already exists are skipped.
func (s *SQLiteStore) Import(ctx context.Context, sessions []Session) (int, error) {
	imported := 0
	for _, sess := range sessions {
		ok, err := s.importOne(ctx, sess)
		if err != nil {
			return imported, fmt.Errorf("import session %s: %w", sess.ID, err)
		}
		if ok {
			imported++
		}
	}
	return imported, nil
}

func (s *SQLiteStore) importOne(ctx context.Context, sess Session) (bool, error) {
	if sess.ID == "" {
		sess.ID = s.newID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, title, grade, subject, tool, model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Grade, sess.Subject, sess.Tool, sess.Model,
		sess.CreatedAt.UTC().Format(timeFormat), sess.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	for i, t := range sess.Turns {
		if t.ID == "" {
			t.ID = s.newID()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns (id, session_id, seq, role, content, pack_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, sess.ID, i+1, string(t.Role), t.Content, nullable(t.PackID),
			t.CreatedAt.UTC().Format(timeFormat)); err != nil {
			return false, err
		}
	}
	return true, tx.Commit()
}
