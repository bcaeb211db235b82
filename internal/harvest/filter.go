package harvest

import (
	"path/filepath"
	"strings"
)

// DefaultSkipExtensions lists filename suffixes excluded entirely from
// harvesting: neither path nor content is recorded. Matched against the
// lowercased filename end, so multi-dot entries like ".min.js" work.
var DefaultSkipExtensions = []string{
	// logs & temp
	".log", ".tmp", ".temp", ".ds_store", "_py.html", ".coverage",
	// config boilerplate
	".ini", ".cfg", ".conf", ".config", ".properties", ".env", ".editorconfig",
	// databases & checkpoints
	".db", ".sqlite", ".sqlite3", ".db-wal", ".db-shm", ".ckpt", ".safetensors",
	// audio/video
	".wav", ".mp3", ".flac", ".ogg", ".m4a", ".mp4", ".mov", ".avi", ".mkv", ".webm",
	// archives & bundles
	".zip", ".tar", ".gz", ".rar", ".7z", ".xz", ".bz2", ".zst",
	// binaries & objects
	".exe", ".dll", ".so", ".dylib", ".o", ".obj", ".a", ".lib", ".wasm", ".pyc", ".dat",
	// misc large/generated
	".bak", ".dir", ".lock", ".min.js", ".min.css", ".map",
	// notebooks & ML artifacts
	".ipynb", ".pt", ".onnx", ".h5", ".pth", ".npz", ".npy", ".pb", ".tflite",
}

// DefaultPathOnlyExtensions lists extensions whose files are recorded with
// metadata only: useful to know they exist, but the content is binary.
var DefaultPathOnlyExtensions = []string{
	// images
	".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".ico", ".tiff", ".tif", ".webp", ".avif", ".heic",
	// fonts
	".ttf", ".otf", ".woff", ".woff2",
	// documents
	".pdf", ".doc", ".docx", ".ppt", ".pptx",
}

// DefaultSkipFiles lists exact filenames excluded from harvesting.
var DefaultSkipFiles = []string{
	"index.jsx", "index.tsx", "__init__.py", "harvest.json",
}

// LockfileNames are dependency lockfiles, always excluded regardless of
// the configured filename set.
var LockfileNames = []string{
	"yarn.lock", "package-lock.json", "pnpm-lock.yaml", "poetry.lock",
	"Pipfile.lock", "Cargo.lock", "Gemfile.lock", "composer.lock", "go.sum",
}

// DefaultSkipFolders lists directory names pruned wherever they appear in
// a path.
var DefaultSkipFolders = []string{
	"node_modules", "vendor",
	".git", ".hg", ".svn",
	"htmlcov", "dist", "build", "out", "bin", "obj", "target",
	"migrations",
	// test directories
	"tests", "test", "__tests__", "spec", "e2e", "cypress", "playwright",
	"coverage", "test-results", "allure-results",
	// caches & tooling
	".pytest_cache", ".mypy_cache", ".ruff_cache", ".tox", ".nox", ".cache",
	".gradle", ".ipynb_checkpoints", ".dart_tool", ".direnv",
	".vscode", ".idea", ".next", ".expo", ".parcel-cache", ".turbo", ".yarn",
	".pnp", ".nx", ".nuxt", ".svelte-kit", ".angular",
	// site/docs/storybook artifacts
	"storybook-static", ".docusaurus", "site",
	// mobile / platform
	"Pods", "DerivedData",
	"site-packages", "__pycache__",
}

// RulesConfig customizes the filter. Empty slices fall back to the
// defaults; OnlyExtensions empty means every extension is allowed.
type RulesConfig struct {
	SkipExtensions     []string
	OnlyExtensions     []string
	SkipFiles          []string
	SkipFolders        []string
	PathOnlyExtensions []string
	IncludeHidden      bool
}

// Rules decides which relative paths participate in a harvest and which
// are listed without content.
type Rules struct {
	skipExt     []string
	onlyExt     map[string]bool
	skipFiles   map[string]bool
	skipFolders map[string]bool
	pathOnlyExt map[string]bool
	lockfiles   map[string]bool
	skipHidden  bool
}

// DefaultRules returns the filter with all default sets and the hidden
// policy enabled.
func DefaultRules() *Rules {
	return NewRules(RulesConfig{})
}

// NewRules builds a filter from cfg, substituting defaults for unset
// fields.
func NewRules(cfg RulesConfig) *Rules {
	skipExt := cfg.SkipExtensions
	if skipExt == nil {
		skipExt = DefaultSkipExtensions
	}
	skipFiles := cfg.SkipFiles
	if skipFiles == nil {
		skipFiles = DefaultSkipFiles
	}
	skipFolders := cfg.SkipFolders
	if skipFolders == nil {
		skipFolders = DefaultSkipFolders
	}
	pathOnly := cfg.PathOnlyExtensions
	if pathOnly == nil {
		pathOnly = DefaultPathOnlyExtensions
	}

	r := &Rules{
		skipExt:     normalizeExtensions(skipExt),
		skipFiles:   toSet(skipFiles),
		skipFolders: toSet(skipFolders),
		pathOnlyExt: toSet(normalizeExtensions(pathOnly)),
		lockfiles:   toSet(LockfileNames),
		skipHidden:  !cfg.IncludeHidden,
	}
	if len(cfg.OnlyExtensions) > 0 {
		r.onlyExt = toSet(normalizeExtensions(cfg.OnlyExtensions))
	}
	return r
}

// ShouldSkip reports whether the root-relative path is excluded from the
// harvest entirely.
func (r *Rules) ShouldSkip(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	name := relPath
	if i := strings.LastIndex(relPath, "/"); i >= 0 {
		name = relPath[i+1:]
	}
	lower := strings.ToLower(name)

	for _, part := range strings.Split(relPath, "/") {
		if r.skipFolders[part] && part != name {
			return true
		}
		if r.skipHidden && strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}

	// Snapshot files are never harvested into a snapshot.
	if strings.HasSuffix(lower, CanonicalExt) {
		return true
	}
	if r.skipFiles[name] || r.lockfiles[name] {
		return true
	}

	for _, suffix := range r.skipExt {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	if r.onlyExt != nil && !r.onlyExt[strings.ToLower(filepath.Ext(name))] {
		return true
	}
	return false
}

// PathOnly reports whether the file should be listed without reading its
// content.
func (r *Rules) PathOnly(relPath string) bool {
	return r.pathOnlyExt[strings.ToLower(filepath.Ext(relPath))]
}

// SkipFolder reports whether a directory name should be pruned during
// traversal.
func (r *Rules) SkipFolder(name string) bool {
	if r.skipFolders[name] {
		return true
	}
	return r.skipHidden && strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

// normalizeExtensions lowercases entries and guarantees a leading dot on
// single-segment extensions, so "py" and ".PY" both mean ".py".
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.Contains(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
