package session

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath       string       `json:"db_path"`
	DBSizeBytes  int64        `json:"db_size_bytes"`
	Sessions     int          `json:"sessions"`
	Turns        int          `json:"turns"`
	CacheEntries int          `json:"cache_entries"`
	CacheHits    int          `json:"cache_hits"`
	Grades       []GradeStats `json:"grades"`
}

// GradeStats holds per-grade session counts.
type GradeStats struct {
	Grade    string `json:"class"`
	Sessions int    `json:"sessions"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.Sessions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&st.Turns)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(hits), 0) FROM response_cache`).Scan(&st.CacheEntries, &st.CacheHits)

	rows, err := s.db.QueryContext(ctx, `
		SELECT grade, COUNT(*) AS cnt FROM sessions
		GROUP BY grade ORDER BY cnt DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var g GradeStats
		rows.Scan(&g.Grade, &g.Sessions)
		st.Grades = append(st.Grades, g)
	}

	return st, nil
}
