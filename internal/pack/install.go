package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cortexlab/cortex/internal/model"
)

const maxDocumentBytes = 8 << 20

// CatalogEntry is one pack advertised by a remote catalog.
type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Grade       string `json:"class,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

type catalogDocument struct {
	Packs []CatalogEntry `json:"packs"`
}

var errMissingDocument = errors.New("document not found")

// ErrTooLarge is returned when a remote document exceeds the download limit.
var ErrTooLarge = errors.New("document too large")

// FetchCatalog retrieves the list of installable packs from catalogURL.
func (s *Store) FetchCatalog(ctx context.Context, catalogURL string) ([]CatalogEntry, error) {
	body, err := s.fetch(ctx, catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	var doc catalogDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if doc.Packs == nil {
		return []CatalogEntry{}, nil
	}
	return doc.Packs, nil
}

// ResolveBaseURL returns where the documents of entry live. Entries without an explicit
// url are expected next to the catalog, under <catalog dir>/<id>.
func ResolveBaseURL(catalogURL string, entry CatalogEntry) string {
	if entry.URL != "" {
		return strings.TrimRight(entry.URL, "/")
	}
	u, err := url.Parse(catalogURL)
	if err != nil {
		return strings.TrimRight(catalogURL, "/") + "/" + entry.ID
	}
	u.Path = path.Join(path.Dir(u.Path), entry.ID)
	u.RawQuery = ""
	return u.String()
}

// Download fetches a pack's documents from baseURL and installs it as id. The
// manifest and full content must both arrive or nothing is installed; a missing
// compact document is tolerated. The cache is invalidated on success.
func (s *Store) Download(ctx context.Context, id, baseURL string) error {
	log := s.log.With("pack_id", id, "base_url", baseURL)
	log.Info("downloading pack")
	baseURL = strings.TrimRight(baseURL, "/")

	manifest, err := s.fetch(ctx, baseURL+"/"+ManifestFile)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ManifestFile, err)
	}
	p, err := ParseManifest(manifest)
	if err != nil {
		return err
	}

	full, err := s.fetch(ctx, baseURL+"/"+FullFile)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", FullFile, err)
	}

	compact, err := s.fetch(ctx, baseURL+"/"+CompactFile)
	if errors.Is(err, ErrTooLarge) {
		return fmt.Errorf("fetch %s: %w", CompactFile, err)
	}
	if err != nil {
		log.Info("no compact knowledge, using full only", "error", err)
		compact = nil
	}

	p.ID = id
	p.FullContent = string(full)
	p.CompactContent = string(compact)
	if err := s.Create(p); err != nil {
		return err
	}
	log.Info("pack installed")
	return nil
}

// Create writes p into the pack root, replacing any existing pack with the same id.
// Files are staged in a hidden directory and renamed into place so discovery never
// sees a half-written pack.
func (s *Store) Create(p *model.KnowledgePack) error {
	if err := validID(p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.FullContent) == "" {
		return fmt.Errorf("%w: empty full content", ErrIncomplete)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create pack root: %w", err)
	}

	staging, err := os.MkdirTemp(s.root, "."+p.ID+".partial-")
	if err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	manifest, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	files := map[string]string{
		ManifestFile: string(manifest),
		FullFile:     p.FullContent,
	}
	if p.CompactContent != "" {
		files[CompactFile] = p.CompactContent
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(staging, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	final := filepath.Join(s.root, p.ID)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("remove previous pack: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("install pack: %w", err)
	}
	committed = true
	s.Invalidate()
	return nil
}

// Remove deletes an installed pack and invalidates the cache.
func (s *Store) Remove(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	dir := filepath.Join(s.root, id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove pack: %w", err)
	}
	s.Invalidate()
	return nil
}

func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid pack id %q", id)
	}
	return nil
}

func (s *Store) fetch(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxDocBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errMissingDocument
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	if int64(len(body)) > s.maxDocBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, s.maxDocBytes)
	}
	return body, nil
}
