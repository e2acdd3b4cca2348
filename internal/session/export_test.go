package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cortexlab/cortex/internal/model"
)

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	a, _ := src.Create(ctx, CreateParams{Grade: "6", Subject: "science"})
	appendTurn(t, src, a.ID, model.RoleUser, "What is a leaf?")
	appendTurn(t, src, a.ID, model.RoleAssistant, "A leaf makes food.")
	src.Create(ctx, CreateParams{Grade: "3"})

	exported, err := src.ExportAll(ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(exported))
	}
	if exported[0].ID != a.ID || len(exported[0].Turns) != 2 {
		t.Errorf("unexpected first export: %+v", exported[0])
	}

	dst, err := NewSQLiteStore(filepath.Join(t.TempDir(), "dst.db"))
	if err != nil {
		t.Fatalf("create dst: %v", err)
	}
	defer dst.Close()

	n, err := dst.Import(ctx, exported)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 imported, got %d", n)
	}

	got, err := dst.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get imported: %v", err)
	}
	if got.Title != "What is a leaf?" || len(got.Turns) != 2 || got.Turns[1].Content != "A leaf makes food." {
		t.Errorf("unexpected imported session: %+v", got)
	}
	if !got.CreatedAt.Equal(exported[0].CreatedAt) {
		t.Errorf("expected created_at preserved")
	}

	// Existing ids are skipped.
	n, err = dst.Import(ctx, exported)
	if err != nil {
		t.Fatalf("reimport: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 imported on second run, got %d", n)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	a, _ := s.Create(ctx, CreateParams{Grade: "6"})
	s.Create(ctx, CreateParams{Grade: "6"})
	s.Create(ctx, CreateParams{Grade: "4"})
	appendTurn(t, s, a.ID, model.RoleUser, "hi")
	s.CachePut(ctx, CacheKey("6", "", "hi"), "hello", "", 0)

	st, err := s.Stats(ctx, path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Sessions != 3 || st.Turns != 1 || st.CacheEntries != 1 {
		t.Errorf("unexpected counts: %+v", st)
	}
	if st.DBSizeBytes == 0 {
		t.Error("expected non-zero db size")
	}
	if len(st.Grades) != 2 || st.Grades[0].Grade != "6" || st.Grades[0].Sessions != 2 {
		t.Errorf("unexpected grade stats: %+v", st.Grades)
	}
}
