// Package watch keeps a snapshot aligned with a live tree: a polling
// loop detects filesystem changes, debounces bursts, and re-harvests.
package watch

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FileState is the change-detection fingerprint of one file. Two states
// are equal iff nothing observable changed.
type FileState struct {
	MtimeNs int64
	Size    int64
}

// ignoredDirs are directory names never descended into during a scan,
// independent of the harvest filter configuration.
var ignoredDirs = map[string]bool{
	".git": true, ".hg": true, ".svn": true,
	"node_modules": true, "vendor": true,
	"dist": true, "build": true, "out": true, "target": true,
	"__pycache__": true, ".pytest_cache": true, ".mypy_cache": true,
	".idea": true, ".vscode": true, ".next": true,
	"venv": true, ".venv": true,
}

// ignoredNames are exact filenames that never count as changes.
var ignoredNames = map[string]bool{
	".DS_Store": true,
	"Thumbs.db": true,
}

// Editor-temp and lock-artifact patterns: files that editors and
// downloaders create mid-save. These never trigger a re-harvest.
var (
	ignoredPrefixes = []string{".#", "#"}
	ignoredSuffixes = []string{"~", ".tmp", ".part", ".crdownload", ".swp", ".swo", ".bak"}
)

// ScanConfig controls one tree scan.
type ScanConfig struct {
	// ExcludeAbs are absolute paths never reported, regardless of any
	// other rule. The watcher puts its own output file and that file's
	// temp sibling here; this is the self-exclusion invariant, not an
	// option.
	ExcludeAbs map[string]bool

	// IncludeExt, when non-empty, restricts the scan to these lowercase
	// dotted extensions. ExcludeExt drops extensions on top of it.
	IncludeExt map[string]bool
	ExcludeExt map[string]bool
}

// Scan walks root and returns the fingerprint of every visible file,
// keyed by root-relative forward-slash path. Stat and read errors skip
// the path silently: files vanish mid-scan during editor save-via-rename
// sequences, and the next tick catches up.
func Scan(root string, cfg ScanConfig) map[string]FileState {
	states := make(map[string]FileState)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (ignoredDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipName(name) {
			return nil
		}
		if cfg.ExcludeAbs != nil {
			if abs, err := filepath.Abs(path); err == nil && cfg.ExcludeAbs[abs] {
				return nil
			}
		}
		ext := strings.ToLower(filepath.Ext(name))
		if len(cfg.IncludeExt) > 0 && !cfg.IncludeExt[ext] {
			return nil
		}
		if cfg.ExcludeExt[ext] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		states[filepath.ToSlash(rel)] = FileState{
			MtimeNs: info.ModTime().UnixNano(),
			Size:    info.Size(),
		}
		return nil
	})
	return states
}

// skipName reports whether a bare filename is an editor/lock artifact or
// a snapshot document.
func skipName(name string) bool {
	if ignoredNames[name] {
		return true
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".harvest.json") {
		return true
	}
	for _, prefix := range ignoredPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, suffix := range ignoredSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Diff returns the paths whose state differs between two scans: changed
// fingerprints, newly present paths, and newly absent paths.
func Diff(prev, curr map[string]FileState) []string {
	var changed []string
	for path, state := range curr {
		old, ok := prev[path]
		if !ok || old != state {
			changed = append(changed, path)
		}
	}
	for path := range prev {
		if _, ok := curr[path]; !ok {
			changed = append(changed, path)
		}
	}
	return changed
}
