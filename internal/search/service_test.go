package search

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
)

func strPtr(s string) *string { return &s }

func boolPtr(v bool) *bool { return &v }

func testSnapshot() *domain.Snapshot {
	pyContent := "def fetch_user(db):\n    return db.get()\ndef _helper():\n    pass\n"
	tsContent := "export default function Button() {\n  return null;\n}\n"
	return &domain.Snapshot{
		Metadata: domain.Metadata{Schema: domain.SchemaVersion},
		Data: []domain.FileEntry{
			{Name: "users.py", Path: "api/users.py", Language: "python", Content: strPtr(pyContent)},
			{Name: "Button.tsx", Path: "ui/Button.tsx", Language: "typescriptreact", Content: strPtr(tsContent)},
		},
		Chunks: []domain.ChunkEntry{
			{ID: "p1", FilePath: "api/users.py", Language: "python", Kind: "function", Symbol: "fetch_user", StartLine: 1, EndLine: 2, Public: true},
			{ID: "p2", FilePath: "api/users.py", Language: "python", Kind: "function", Symbol: "_helper", StartLine: 3, EndLine: 4, Public: false},
			{ID: "t1", FilePath: "ui/Button.tsx", Language: "typescriptreact", Kind: "export_default", Symbol: "Button", StartLine: 1, EndLine: 3, Public: true},
		},
	}
}

func writeSnapshot(t *testing.T, dir string, snap *domain.Snapshot) string {
	t.Helper()
	path := filepath.Join(dir, "codebase.harvest.json")
	if err := harvest.SaveSnapshot(path, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	return path
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	path := writeSnapshot(t, t.TempDir(), testSnapshot())
	svc, err := NewService(path, 20)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewService_MissingFile(t *testing.T) {
	_, err := NewService(filepath.Join(t.TempDir(), "nope.harvest.json"), 20)
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestService_Search_BySymbol(t *testing.T) {
	svc := newTestService(t)

	results, err := svc.Search(SearchParams{Query: "fetch_user"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.Total == 0 {
		t.Fatal("expected at least one hit")
	}
	if got := results.Hits[0].ID; got != "p1" {
		t.Errorf("top hit: got %s, want p1", got)
	}
}

func TestService_Search_ByContent(t *testing.T) {
	svc := newTestService(t)

	results, err := svc.Search(SearchParams{Query: "return null"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.Total == 0 {
		t.Fatal("expected at least one hit")
	}
	if got := results.Hits[0].ID; got != "t1" {
		t.Errorf("top hit: got %s, want t1", got)
	}
}

func TestService_Search_LanguageFilter(t *testing.T) {
	svc := newTestService(t)

	results, err := svc.Search(SearchParams{Query: "function", Language: "python"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, hit := range results.Hits {
		if hit.Fields[domain.ChunkFieldLanguage] != "python" {
			t.Errorf("hit %s has language %v, want python", hit.ID, hit.Fields[domain.ChunkFieldLanguage])
		}
	}
}

func TestService_Search_PublicFilter(t *testing.T) {
	svc := newTestService(t)

	results, err := svc.Search(SearchParams{Query: "helper", Public: boolPtr(false)})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, hit := range results.Hits {
		if hit.ID != "p2" {
			t.Errorf("unexpected public hit %s under public=false filter", hit.ID)
		}
	}
}

func TestService_Search_EmptyQuery(t *testing.T) {
	svc := newTestService(t)

	if _, err := svc.Search(SearchParams{Query: "  "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestService_Search_SizeCap(t *testing.T) {
	path := writeSnapshot(t, t.TempDir(), testSnapshot())
	svc, err := NewService(path, 1)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer func() { _ = svc.Close() }()

	results, err := svc.Search(SearchParams{Query: "def", Size: 50})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results.Hits) > 1 {
		t.Errorf("expected at most 1 hit under cap, got %d", len(results.Hits))
	}
}

func TestService_Refresh_PicksUpNewVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeSnapshot(t, dir, testSnapshot())

	svc, err := NewService(path, 20)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer func() { _ = svc.Close() }()

	// Replace the snapshot the way the watcher does: full-document write.
	snap := testSnapshot()
	snap.Metadata.Version = 2
	snap.Data = append(snap.Data, domain.FileEntry{
		Name: "extra.py", Path: "extra.py", Language: "python",
		Content: strPtr("def brand_new_symbol():\n    pass\n"),
	})
	snap.Chunks = append(snap.Chunks, domain.ChunkEntry{
		ID: "x1", FilePath: "extra.py", Language: "python", Kind: "function",
		Symbol: "brand_new_symbol", StartLine: 1, EndLine: 2, Public: true,
	})
	if err := harvest.SaveSnapshot(path, snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	// Rename alone can preserve mtime granularity on coarse clocks.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := svc.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if got := svc.Snapshot().Metadata.Version; got != 2 {
		t.Errorf("version after refresh: got %d, want 2", got)
	}
	results, err := svc.Search(SearchParams{Query: "brand_new_symbol"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.Total == 0 {
		t.Error("expected new symbol to be searchable after refresh")
	}
}

func TestService_Refresh_NoChangeIsCheap(t *testing.T) {
	svc := newTestService(t)

	before := svc.Snapshot()
	if err := svc.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if svc.Snapshot() != before {
		t.Error("unchanged file must not be reloaded")
	}
}

func TestBuildIndex_ContentFreeChunks(t *testing.T) {
	snap := &domain.Snapshot{
		Data: []domain.FileEntry{
			{Name: "a.py", Path: "a.py", Language: "python", Truncated: true, TruncatedReason: domain.TruncatedNoContent},
		},
		Chunks: []domain.ChunkEntry{
			{ID: "c1", FilePath: "a.py", Language: "python", Kind: "file", Symbol: "a", StartLine: 1, EndLine: 1},
		},
	}

	index, err := BuildIndex(snap)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	defer func() { _ = index.Close() }()

	count, err := index.DocCount()
	if err != nil {
		t.Fatalf("DocCount: %v", err)
	}
	if count != 1 {
		t.Errorf("doc count: got %d, want 1", count)
	}
}
