// Package pack discovers, caches, installs and selects knowledge packs.
package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cortexlab/cortex/internal/logger"
	"github.com/cortexlab/cortex/internal/model"
)

// File names inside a pack directory.
const (
	ManifestFile = "pack.json"
	FullFile     = "knowledge.md"
	CompactFile  = "knowledge.compact.md"
)

var (
	// ErrIncomplete marks a pack directory missing its manifest or full content.
	ErrIncomplete = errors.New("pack incomplete")
	// ErrNotFound is returned when a pack id is not installed or not in a catalog.
	ErrNotFound = errors.New("pack not found")
)

// Store owns the on-disk pack root and the in-memory pack cache.
type Store struct {
	root        string
	log         *logger.Logger
	client      *http.Client
	maxDocBytes int64

	mu     sync.RWMutex
	cached []model.KnowledgePack
	loaded bool

	group singleflight.Group
	scans atomic.Int64
}

// NewStore creates a store rooted at dir. Nothing is read until Discover.
func NewStore(dir string, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		root:        dir,
		log:         log.With("component", "PackStore"),
		client:      &http.Client{Timeout: 60 * time.Second},
		maxDocBytes: maxDocumentBytes,
	}
}

// Root returns the pack directory.
func (s *Store) Root() string { return s.root }

// Discover returns the installed packs. The first call, or any call with force,
// scans the pack root; later calls are served from the cache until Invalidate.
func (s *Store) Discover(ctx context.Context, force bool) ([]model.KnowledgePack, error) {
	if !force {
		s.mu.RLock()
		if s.loaded {
			out := append([]model.KnowledgePack(nil), s.cached...)
			s.mu.RUnlock()
			return out, nil
		}
		s.mu.RUnlock()
	}

	v, err, _ := s.group.Do("scan", func() (interface{}, error) {
		packs, err := s.scan(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cached = packs
		s.loaded = true
		s.mu.Unlock()
		return packs, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]model.KnowledgePack(nil), v.([]model.KnowledgePack)...), nil
}

// Invalidate drops the cache; the next Discover rescans.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.loaded = false
	s.mu.Unlock()
}

// Get returns an installed pack by id.
func (s *Store) Get(ctx context.Context, id string) (*model.KnowledgePack, error) {
	packs, err := s.Discover(ctx, false)
	if err != nil {
		return nil, err
	}
	for i := range packs {
		if packs[i].ID == id {
			return &packs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Store) scan(ctx context.Context) ([]model.KnowledgePack, error) {
	s.scans.Add(1)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(s.root, 0o755); err != nil {
				return nil, fmt.Errorf("create pack root: %w", err)
			}
			return []model.KnowledgePack{}, nil
		}
		return nil, fmt.Errorf("read pack root: %w", err)
	}

	packs := []model.KnowledgePack{}
	seen := map[string]string{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Hidden entries include in-flight download staging directories.
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		p, err := LoadDir(dir)
		if err != nil {
			s.log.Warn("skipping pack", "dir", e.Name(), "error", err)
			continue
		}
		if prev, dup := seen[p.ID]; dup {
			s.log.Warn("skipping duplicate pack id", "id", p.ID, "dir", e.Name(), "first_dir", prev)
			continue
		}
		seen[p.ID] = e.Name()
		s.log.Debug("loaded pack", "id", p.ID, "grade", p.Grade, "subject", p.Subject, "keywords", len(p.Keywords))
		packs = append(packs, *p)
	}

	s.log.Info("pack discovery complete", "root", s.root, "folders", len(entries), "packs", len(packs))
	return packs, nil
}

// LoadDir reads one pack directory. The manifest and full content are required;
// the compact content is optional.
func LoadDir(dir string) (*model.KnowledgePack, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, ManifestFile)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	full, err := os.ReadFile(filepath.Join(dir, FullFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: missing %s", ErrIncomplete, FullFile)
		}
		return nil, fmt.Errorf("read full content: %w", err)
	}

	p, err := ParseManifest(manifest)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = filepath.Base(dir)
	}
	p.FullContent = string(full)

	compact, err := os.ReadFile(filepath.Join(dir, CompactFile))
	switch {
	case err == nil:
		p.CompactContent = string(compact)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("read compact content: %w", err)
	}
	return p, nil
}

// ParseManifest decodes a pack.json document.
func ParseManifest(data []byte) (*model.KnowledgePack, error) {
	var p model.KnowledgePack
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	p.Subject = strings.ToLower(strings.TrimSpace(p.Subject))
	p.Grade = strings.TrimSpace(p.Grade)
	return &p, nil
}
