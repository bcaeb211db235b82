package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harvestlab/harvest/internal/config"
	"github.com/harvestlab/harvest/internal/harvest"
	"github.com/harvestlab/harvest/internal/query"
)

// bumpMtime pushes the file's timestamp forward so stat-based change
// detection sees a rewrite even on coarse-granularity filesystems.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
}

func defaultSettings(t *testing.T) *config.Settings {
	t.Helper()
	settings, err := config.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	return settings
}

func writeSourceTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return root
}

func TestRunReap_LocalDirectory(t *testing.T) {
	root := writeSourceTree(t, map[string]string{
		"app.py":        "def main():\n    pass\n",
		"ui/Button.tsx": "export default function Button() {\n  return null;\n}\n",
	})
	out := filepath.Join(t.TempDir(), "out.harvest.json")

	settings := defaultSettings(t)
	settings.Reap.Out = out

	if err := RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("RunReap: %v", err)
	}

	snap, err := harvest.LoadSnapshot(out)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got := snap.Metadata.Counts.TotalFiles; got != 2 {
		t.Errorf("total_files: got %d, want 2", got)
	}
	if len(snap.Chunks) == 0 {
		t.Error("expected chunks in the snapshot")
	}
	if snap.Metadata.Schema != "harvest/v1.2" {
		t.Errorf("schema: got %q", snap.Metadata.Schema)
	}
}

func TestRunReap_IncrementalWithPrev(t *testing.T) {
	root := writeSourceTree(t, map[string]string{"app.py": "def main():\n    pass\n"})
	dir := t.TempDir()
	first := filepath.Join(dir, "first.harvest.json")
	second := filepath.Join(dir, "second.harvest.json")

	settings := defaultSettings(t)
	settings.Reap.Out = first
	if err := RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("first RunReap: %v", err)
	}

	// A watcher may have been bumping the snapshot; reap must preserve
	// its version rather than reset it.
	firstSnap, err := harvest.LoadSnapshot(first)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	firstSnap.Metadata.Version = 5
	if err := harvest.SaveSnapshot(first, firstSnap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "extra.py"), []byte("x = 1\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	settings = defaultSettings(t)
	settings.Reap.Out = second
	settings.Reap.Prev = first
	if err := RunReap(context.Background(), settings, root); err != nil {
		t.Fatalf("second RunReap: %v", err)
	}

	snap, err := harvest.LoadSnapshot(second)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap.Metadata.Delta == nil {
		t.Fatal("expected a delta section on an incremental harvest")
	}
	if got := snap.Metadata.Delta.Added; got != 1 {
		t.Errorf("delta.added: got %d, want 1", got)
	}
	if snap.Metadata.Version != 5 {
		t.Errorf("version: got %d, want 5 carried from previous", snap.Metadata.Version)
	}
}

func TestRunReap_MissingPrevFails(t *testing.T) {
	root := writeSourceTree(t, map[string]string{"app.py": "x = 1\n"})

	settings := defaultSettings(t)
	settings.Reap.Out = filepath.Join(t.TempDir(), "out.harvest.json")
	settings.Reap.Prev = filepath.Join(t.TempDir(), "nope.harvest.json")

	if err := RunReap(context.Background(), settings, root); err == nil {
		t.Fatal("expected error for missing previous snapshot")
	}
}

func TestRunQuery_JSONLines(t *testing.T) {
	path := writeAppSnapshot(t, appTestSnapshot())

	var buf bytes.Buffer
	err := RunQuery(path, query.Options{Language: "python"}, &buf)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines: got %d, want 2\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"symbol":"fetch_user"`) {
		t.Errorf("first line: got %s", lines[0])
	}
}

func TestRunQuery_DirectoryTarget(t *testing.T) {
	path := writeAppSnapshot(t, appTestSnapshot())

	var buf bytes.Buffer
	// Pointing at the directory resolves to the canonical basename.
	if err := RunQuery(filepath.Dir(path), query.Options{}, &buf); err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected output for the chunks entity")
	}
}

func TestRunQuery_MissingSnapshot(t *testing.T) {
	var buf bytes.Buffer
	err := RunQuery(filepath.Join(t.TempDir(), "nope.harvest.json"), query.Options{}, &buf)
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestRunQuery_InvalidOptions(t *testing.T) {
	path := writeAppSnapshot(t, appTestSnapshot())

	var buf bytes.Buffer
	if err := RunQuery(path, query.Options{PathRegex: "["}, &buf); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestRunMCP_MissingSnapshot(t *testing.T) {
	settings := defaultSettings(t)
	err := RunMCP(context.Background(), settings, filepath.Join(t.TempDir(), "nope.harvest.json"), "test", nil)
	if err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}

func TestEngineConfig_ExtendsDefaults(t *testing.T) {
	cfg := engineConfig(&config.ReapSettings{
		MaxFileBytes: 1000,
		MaxFiles:     10,
		SkipExt:      []string{".generated"},
	})
	if cfg.MaxFileBytes != 1000 || cfg.MaxFiles != 10 {
		t.Errorf("ceilings: got %d/%d", cfg.MaxFileBytes, cfg.MaxFiles)
	}
	if cfg.Rules.ShouldSkip("a.generated") != true {
		t.Error("user skip-ext not applied")
	}
	// Defaults survive alongside the user's additions.
	if cfg.Rules.ShouldSkip("archive.zip") != true {
		t.Error("default skip-ext lost")
	}
}

func TestSplitFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a,b", []string{"a", "b"}},
		{" a , b ", []string{"a", "b"}},
		{"a,,b,", []string{"a", "b"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := splitFields(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitFields(%q): got %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitFields(%q)[%d]: got %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}
