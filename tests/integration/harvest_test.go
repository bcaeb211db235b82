package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harvestlab/harvest/internal/app"
	"github.com/harvestlab/harvest/internal/config"
	"github.com/harvestlab/harvest/internal/domain"
	"github.com/harvestlab/harvest/internal/harvest"
	mcputil "github.com/harvestlab/harvest/internal/mcp"
	"github.com/harvestlab/harvest/internal/query"
	"github.com/harvestlab/harvest/internal/search"
	"github.com/harvestlab/harvest/tests/integration/testkit"
)

// sourceTree is a small polyglot project exercising the Python and
// JS/TS extraction paths plus a whole-file fallback.
func sourceTree() map[string]string {
	return map[string]string{
		"api/users.py":  "def fetch_user(db):\n    return db.get()\n\n\ndef _helper():\n    pass\n",
		"ui/Button.tsx": "export default function Button() {\n  return null;\n}\n\nexport function helper() {\n  return 1;\n}\n",
		"README.md":     "# demo\n",
	}
}

// reapTree harvests the tree into a snapshot file and returns its path.
func reapTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := testkit.WriteTree(t, files)
	out := filepath.Join(t.TempDir(), "codebase.harvest.json")

	settings, err := config.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	settings.Reap.Out = out

	if err := app.RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("RunReap: %v", err)
	}
	return out
}

func newSearchService(t *testing.T, path string) *search.Service {
	t.Helper()
	svc, err := search.NewService(path, 20)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func extractTextContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

// ========================================
// Reap and Query Pipeline
// ========================================

func TestPipeline_ReapProducesSnapshot(t *testing.T) {
	path := reapTree(t, sourceTree())

	snap, err := harvest.LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	if got := snap.Metadata.Counts.TotalFiles; got != 3 {
		t.Errorf("total_files: got %d, want 3", got)
	}
	if snap.Metadata.Source.Type != domain.SourceLocal {
		t.Errorf("source type: got %q", snap.Metadata.Source.Type)
	}

	var symbols []string
	for _, c := range snap.Chunks {
		if c.FilePath == "api/users.py" {
			symbols = append(symbols, c.Symbol)
		}
	}
	if len(symbols) != 2 || symbols[0] != "fetch_user" {
		t.Errorf("python symbols: got %v", symbols)
	}
}

func TestPipeline_ReapThenQuery(t *testing.T) {
	path := reapTree(t, sourceTree())

	var buf bytes.Buffer
	err := app.RunQuery(path, query.Options{Language: "python", Kind: "function"}, &buf)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d\n%s", len(lines), buf.String())
	}
	var row struct {
		Symbol string `json:"symbol"`
		Public bool   `json:"public"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if row.Symbol != "fetch_user" || !row.Public {
		t.Errorf("row: got %+v", row)
	}
}

func TestPipeline_IncrementalReap(t *testing.T) {
	files := sourceTree()
	root := testkit.WriteTree(t, files)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.harvest.json")
	second := filepath.Join(dir, "second.harvest.json")

	settings, err := config.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	settings.Reap.Out = first
	if err := app.RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("first RunReap: %v", err)
	}

	if err := os.Remove(filepath.Join(root, "README.md")); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "api", "orders.py"), []byte("def list_orders():\n    pass\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	settings.Reap.Out = second
	settings.Reap.Prev = first
	if err := app.RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("second RunReap: %v", err)
	}

	snap, err := harvest.LoadSnapshot(second)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	delta := snap.Metadata.Delta
	if delta == nil {
		t.Fatal("expected a delta against the previous snapshot")
	}
	if delta.Added != 1 || delta.Removed != 1 {
		t.Errorf("delta: got %+v, want 1 added / 1 removed", delta)
	}
}

// ========================================
// Snapshot Service and Tool Handlers
// ========================================

func TestPipeline_SearchTool(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	handler := mcputil.NewSearchHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, mcputil.SearchArgument{
		Query: "fetch_user",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", extractTextContent(t, result))
	}
	text := extractTextContent(t, result)
	if !strings.Contains(text, "api/users.py") || !strings.Contains(text, "fetch_user") {
		t.Errorf("search output:\n%s", text)
	}
}

func TestPipeline_ReadToolSkeleton(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	handler := mcputil.NewReadHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, mcputil.ReadArgument{
		Path:     "api/users.py",
		Skeleton: true,
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", extractTextContent(t, result))
	}
	text := extractTextContent(t, result)
	if !strings.Contains(text, "def fetch_user(db):") {
		t.Errorf("skeleton should keep signatures:\n%s", text)
	}
	if strings.Contains(text, "return db.get()") {
		t.Errorf("skeleton should drop bodies:\n%s", text)
	}
}

func TestPipeline_QueryToolFilesEntity(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	handler := mcputil.NewQueryHandler(svc)

	result, _, err := handler.Handle(context.Background(), &mcp.CallToolRequest{}, mcputil.QueryArgument{
		Entity:   "files",
		Language: "typescriptreact",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", extractTextContent(t, result))
	}
	text := extractTextContent(t, result)
	if !strings.Contains(text, `"path":"ui/Button.tsx"`) {
		t.Errorf("query output:\n%s", text)
	}
}

// ========================================
// HTTP Server
// ========================================

func TestPipeline_HTTPServer(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	settings := testkit.NewServeSettings(t, nil)
	baseURL := testkit.StartAPIServer(t, svc, settings)

	resp, err := http.Get(baseURL + "/api/search?language=python")
	if err != nil {
		t.Fatalf("GET /api/search: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	if rows[0]["file_path"] != "api/users.py" {
		t.Errorf("first row: got %v", rows[0])
	}
}

func TestPipeline_HTTPServer_APIKeyAuth(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	settings := testkit.NewServeSettings(t, &testkit.ServeOptions{
		AuthType: config.AuthTypeAPIKey,
		APIKeys:  []string{"sekret"},
	})
	baseURL := testkit.StartAPIServer(t, svc, settings)

	resp, err := http.Get(baseURL + "/api/meta")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key: got %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/meta", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("X-API-Key", "sekret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key: got %d, body %s", resp.StatusCode, body)
	}
	if !bytes.Contains(body, []byte(`"schema"`)) {
		t.Errorf("meta body: %s", body)
	}
}

func TestPipeline_HTTPServer_Export(t *testing.T) {
	svc := newSearchService(t, reapTree(t, sourceTree()))
	settings := testkit.NewServeSettings(t, nil)
	baseURL := testkit.StartAPIServer(t, svc, settings)

	resp, err := http.Get(baseURL + "/api/export?entity=files")
	if err != nil {
		t.Fatalf("GET /api/export: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("Content-Type"); got != "application/x-ndjson" {
		t.Errorf("content type: got %q", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(lines) != 3 {
		t.Errorf("export lines: got %d, want 3", len(lines))
	}
}
