package session

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// CacheEntry is a stored response for a (grade, tool, input) key.
type CacheEntry struct {
	Key       string     `json:"key"`
	Response  string     `json:"response"`
	PackID    string     `json:"pack_id,omitempty"`
	Hits      int        `json:"hits"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

var spaceRun = regexp.MustCompile(`\s+`)

// CacheKey builds the cache key for a question. The input is normalised so that
// case and spacing differences share an entry.
func CacheKey(grade, tool, input string) string {
	if grade == "" {
		grade = "none"
	}
	if tool == "" {
		tool = "chat"
	}
	norm := spaceRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(input)), " ")
	sum := sha256.Sum256([]byte(norm))
	return grade + ":" + tool + ":" + hex.EncodeToString(sum[:])[:16]
}

// CacheGet returns the live entry for key, counting the hit. ok is false on a miss.
func (s *SQLiteStore) CacheGet(ctx context.Context, key string) (entry *CacheEntry, ok bool, err error) {
	now := time.Now().UTC().Format(timeFormat)
	var e CacheEntry
	var packID, expires sql.NullString
	var created string
	err = s.db.QueryRowContext(ctx,
		`SELECT key, response, pack_id, hits, created_at, expires_at
		 FROM response_cache WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)`,
		key, now).Scan(&e.Key, &e.Response, &packID, &e.Hits, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache: %w", err)
	}
	if packID.Valid {
		e.PackID = packID.String
	}
	e.CreatedAt, _ = time.Parse(timeFormat, created)
	if expires.Valid {
		t, _ := time.Parse(timeFormat, expires.String)
		e.ExpiresAt = &t
	}

	s.db.ExecContext(ctx, `UPDATE response_cache SET hits = hits + 1 WHERE key = ?`, key)
	e.Hits++
	return &e, true, nil
}

// CachePut stores response under key, replacing any previous entry. A zero ttl
// never expires.
func (s *SQLiteStore) CachePut(ctx context.Context, key, response, packID string, ttl time.Duration) error {
	now := time.Now().UTC()
	var expiresAt *string
	if ttl > 0 {
		exp := now.Add(ttl).Format(timeFormat)
		expiresAt = &exp
	}
	grade, tool := splitKey(key)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO response_cache (key, grade, tool, response, pack_id, hits, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET response = excluded.response, pack_id = excluded.pack_id,
		   hits = 0, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, grade, tool, response, nullable(packID), now.Format(timeFormat), expiresAt)
	if err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}

// CacheClear removes every cached response and reports how many were dropped.
func (s *SQLiteStore) CacheClear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_cache`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

func splitKey(key string) (grade, tool string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return "", ""
	}
	return parts[0], parts[1]
}

var ttlRegex = regexp.MustCompile(`^(\d+)([dhms])$`)

// ParseTTL parses a TTL string like "7d", "24h", "30m" into a time.Duration.
// Empty and "0" mean no expiry.
func ParseTTL(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	m := ttlRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid format %q (use e.g. 7d, 24h, 30m, 60s)", s)
	}
	n, _ := strconv.Atoi(m[1])
	switch m[2] {
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("unknown unit %q", m[2])
}
