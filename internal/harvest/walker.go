package harvest

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
)

// Walker enumerates candidate files under a root. It prefers git's
// tracked-file list, which skips ignored build artifacts for free, and
// falls back to a filesystem walk when the root is not a repository.
type Walker struct {
	git   *GitClient
	rules *Rules
}

// NewWalker creates a Walker backed by the system git binary.
func NewWalker(rules *Rules) *Walker {
	return &Walker{git: NewGitClient(), rules: rules}
}

// NewWalkerWithGit creates a Walker with a custom git client (for testing).
func NewWalkerWithGit(rules *Rules, git *GitClient) *Walker {
	return &Walker{git: git, rules: rules}
}

// List returns the filtered candidate paths under root, relative to root,
// forward-slash separated and sorted. Sorting makes the output stable
// across listing strategies and keeps the file-count ceiling deterministic.
func (w *Walker) List(ctx context.Context, root string) ([]string, error) {
	paths, err := w.git.LsFiles(ctx, root)
	if err != nil {
		paths, err = w.walk(root)
		if err != nil {
			return nil, err
		}
	}

	var out []string
	for _, p := range paths {
		rel := filepath.ToSlash(p)
		if w.rules.ShouldSkip(rel) {
			continue
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

// walk lists files lexically, pruning blocked directories. Unreadable
// subdirectories are skipped rather than failing the whole harvest; only
// an unreadable root is fatal.
func (w *Walker) walk(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == filepath.Clean(root) {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if path != filepath.Clean(root) && w.rules.SkipFolder(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
