package harvest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func TestWalker_List_FromGit(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddResponse("git ls-files", []byte("src/app.py\nnode_modules/react/index.js\ndebug.log\nweb/Button.tsx\n"), nil)

	walker := NewWalkerWithGit(DefaultRules(), NewGitClientWithExecutor(mock))
	paths, err := walker.List(context.Background(), "/repo")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"src/app.py", "web/Button.tsx"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestWalker_List_FallbackToWalk(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.py":            "def a():\n    pass\n",
		"web/Button.tsx":        "export default function Button() {}\n",
		"node_modules/lib/x.js": "module.exports = {}\n",
		"dist/bundle.js":        "var x=1\n",
		"server.log":            "noise\n",
		".hidden/secret.py":     "x = 1\n",
		"docs/readme.md":        "# hi\n",
	})

	mock := NewMockExecutor()
	mock.AddResponse("git ls-files", nil, errors.New("not a git repository"))

	walker := NewWalkerWithGit(DefaultRules(), NewGitClientWithExecutor(mock))
	paths, err := walker.List(context.Background(), root)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"docs/readme.md", "src/app.py", "web/Button.tsx"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	if !sort.StringsAreSorted(paths) {
		t.Errorf("paths not sorted: %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestWalker_List_MissingRoot(t *testing.T) {
	mock := NewMockExecutor()
	mock.AddResponse("git ls-files", nil, errors.New("not a git repository"))

	walker := NewWalkerWithGit(DefaultRules(), NewGitClientWithExecutor(mock))
	if _, err := walker.List(context.Background(), filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Error("Expected error for missing root")
	}
}

func TestWalker_List_DeterministicAcrossStrategies(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.py": "x = 1\n",
		"a.py": "y = 2\n",
		"c.md": "# c\n",
	})

	gitMock := NewMockExecutor()
	gitMock.AddResponse("git ls-files", []byte("c.md\nb.py\na.py\n"), nil)
	fromGit, err := NewWalkerWithGit(DefaultRules(), NewGitClientWithExecutor(gitMock)).List(context.Background(), root)
	if err != nil {
		t.Fatalf("git-backed List failed: %v", err)
	}

	walkMock := NewMockExecutor()
	walkMock.AddResponse("git ls-files", nil, errors.New("not a git repository"))
	fromWalk, err := NewWalkerWithGit(DefaultRules(), NewGitClientWithExecutor(walkMock)).List(context.Background(), root)
	if err != nil {
		t.Fatalf("walk-backed List failed: %v", err)
	}

	if len(fromGit) != len(fromWalk) {
		t.Fatalf("strategy mismatch: git=%v walk=%v", fromGit, fromWalk)
	}
	for i := range fromGit {
		if fromGit[i] != fromWalk[i] {
			t.Errorf("order differs at %d: git=%q walk=%q", i, fromGit[i], fromWalk[i])
		}
	}
}
