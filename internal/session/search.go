package session

import (
	"context"
	"time"

	"github.com/cortexlab/cortex/internal/model"
)

// SearchParams holds parameters for searching stored turns.
type SearchParams struct {
	Query string
	Limit int
}

// SearchResult is a turn matching a search, with its session title.
type SearchResult struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	Turn      Turn      `json:"turn"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Search finds turns whose content contains the query substring, newest first.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]SearchResult, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.session_id, t.seq, t.role, t.content, t.pack_id, t.created_at,
		       s.title, s.updated_at
		FROM turns t
		INNER JOIN sessions s ON s.id = t.session_id
		WHERE t.content LIKE ?
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`, "%"+p.Query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var role, created, updated string
		var packID *string
		if err := rows.Scan(&r.Turn.ID, &r.Turn.SessionID, &r.Turn.Seq, &role, &r.Turn.Content,
			&packID, &created, &r.Title, &updated); err != nil {
			return nil, err
		}
		r.Turn.Role = model.Role(role)
		if packID != nil {
			r.Turn.PackID = *packID
		}
		r.Turn.CreatedAt, _ = time.Parse(timeFormat, created)
		r.UpdatedAt, _ = time.Parse(timeFormat, updated)
		r.SessionID = r.Turn.SessionID
		results = append(results, r)
	}
	return results, rows.Err()
}
