package harvest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/harvestlab/harvest/internal/domain"
)

const (
	// DefaultMaxFiles is the file-count ceiling; enumeration stops once
	// reached, later files are invisible rather than marked truncated.
	DefaultMaxFiles = 5000

	// DefaultMaxFileBytes is the per-file size ceiling. Larger files keep
	// their metadata entry but their content is never read.
	DefaultMaxFileBytes = 200_000
)

// EngineConfig carries the harvest knobs. Zero values fall back to the
// package defaults.
type EngineConfig struct {
	Rules          *Rules
	MaxFiles       int
	MaxFileBytes   int64
	IncludeContent bool
	NoContent      bool
}

// Engine orchestrates a harvest: walk, stat, read, classify, extract,
// assemble. A single file's failure never aborts the run; the file is
// logged and skipped.
type Engine struct {
	cfg    EngineConfig
	walker *Walker
	github *GitHubClient
}

// NewEngine creates an Engine backed by the system git binary and the
// public GitHub endpoints.
func NewEngine(cfg EngineConfig) *Engine {
	return NewEngineWithClients(cfg, &DefaultExecutor{}, NewGitHubClient())
}

// NewEngineWithExecutor creates an Engine with a custom command executor
// (for testing).
func NewEngineWithExecutor(cfg EngineConfig, executor CommandExecutor) *Engine {
	return NewEngineWithClients(cfg, executor, NewGitHubClient())
}

// NewEngineWithClients creates an Engine with custom git and GitHub
// clients (for testing).
func NewEngineWithClients(cfg EngineConfig, executor CommandExecutor, github *GitHubClient) *Engine {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = DefaultMaxFiles
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	walker := NewWalkerWithGit(cfg.Rules, NewGitClientWithExecutor(executor))
	return &Engine{cfg: cfg, walker: walker, github: github}
}

// HarvestLocal harvests the tree rooted at root into a fresh snapshot.
// When prev is non-nil, files whose (size, mtime) pair is unchanged are
// carried over verbatim without re-reading, and the snapshot metadata
// gains a delta section comparing the two runs.
func (e *Engine) HarvestLocal(ctx context.Context, root string, prev *domain.Snapshot) (*domain.Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to access root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	paths, err := e.walker.List(ctx, absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	prevIndex := buildPrevIndex(prev)

	files := []domain.FileEntry{}
	chunks := []domain.ChunkEntry{}
	for _, rel := range paths {
		if len(files) >= e.cfg.MaxFiles {
			slog.Warn("File ceiling reached, remaining files skipped", "max_files", e.cfg.MaxFiles)
			break
		}

		full := filepath.Join(absRoot, filepath.FromSlash(rel))
		info, err := os.Stat(full)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", rel, "error", err)
			continue
		}
		size := info.Size()
		mtime := float64(info.ModTime().UnixNano()) / 1e9

		// Unchanged since the previous snapshot: reuse entry and chunks.
		if pe, ok := prevIndex[rel]; ok && pe.file.Size == size &&
			pe.file.Mtime != nil && *pe.file.Mtime == mtime {
			files = append(files, pe.file)
			chunks = append(chunks, pe.chunks...)
			continue
		}

		entry := domain.FileEntry{
			Name:     path.Base(rel),
			Path:     rel,
			Size:     size,
			Mtime:    &mtime,
			Language: Classify(rel),
		}

		switch {
		case e.cfg.NoContent:
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedNoContent
		case e.cfg.Rules.PathOnly(rel):
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedPathOnly
		case size > e.cfg.MaxFileBytes:
			entry.Truncated = true
			entry.TruncatedReason = domain.TruncatedSize
		}
		if entry.Truncated {
			files = append(files, entry)
			continue
		}

		data, err := os.ReadFile(full)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", rel, "error", err)
			continue
		}
		text := string(data)
		entry.Hash = HashBytes(data)
		if e.cfg.IncludeContent {
			entry.Content = &text
		}

		fileChunks, exports, pySymbols := extractFile(ctx, rel, entry.Language, text)
		entry.Exports = exports
		entry.PySymbols = pySymbols

		files = append(files, entry)
		chunks = append(chunks, fileChunks...)
	}

	metadata := domain.Metadata{
		Source: domain.Source{
			Type: domain.SourceLocal,
			Root: absRoot,
		},
		Counts:    summarize(files),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Schema:    domain.SchemaVersion,
	}
	if prev != nil {
		delta := computeDelta(prev, files)
		metadata.Delta = &delta
		// Carry the watch-mode version; callers bump it on flush.
		metadata.Version = prev.Metadata.Version
	}

	return &domain.Snapshot{Metadata: metadata, Data: files, Chunks: chunks}, nil
}

// extractFile dispatches to the language extractor and returns the chunk
// list plus whichever symbol summary applies.
func extractFile(ctx context.Context, path, language, text string) ([]domain.ChunkEntry, *domain.Exports, *domain.PySymbols) {
	switch {
	case language == "python":
		chunks, symbols := PyChunks(ctx, text, path)
		return chunks, nil, symbols
	case IsJSTS(language):
		return JSTSChunks(text, path), ExtractJSTSExports(text, Stem(path)), nil
	default:
		return []domain.ChunkEntry{WholeFileChunk(path, language, text)}, nil, nil
	}
}

type prevEntry struct {
	file   domain.FileEntry
	chunks []domain.ChunkEntry
}

// buildPrevIndex maps path to the previous snapshot's entry and chunks.
func buildPrevIndex(prev *domain.Snapshot) map[string]prevEntry {
	if prev == nil {
		return nil
	}
	index := make(map[string]prevEntry, len(prev.Data))
	for _, f := range prev.Data {
		index[f.Path] = prevEntry{file: f}
	}
	for _, c := range prev.Chunks {
		pe, ok := index[c.FilePath]
		if !ok {
			continue
		}
		pe.chunks = append(pe.chunks, c)
		index[c.FilePath] = pe
	}
	return index
}

// summarize aggregates counts over the harvested set. Truncated files
// still contribute their size.
func summarize(files []domain.FileEntry) domain.Counts {
	counts := domain.Counts{FilesByLanguage: map[string]int{}}
	for _, f := range files {
		counts.TotalFiles++
		counts.TotalBytes += f.Size
		if f.Language != "" {
			counts.FilesByLanguage[f.Language]++
		}
	}
	return counts
}

// computeDelta counts added, removed, and changed paths between the
// previous snapshot and the new file set. Change is detected by hash when
// both sides were read, by size otherwise.
func computeDelta(prev *domain.Snapshot, files []domain.FileEntry) domain.Delta {
	prevFiles := make(map[string]domain.FileEntry, len(prev.Data))
	for _, f := range prev.Data {
		prevFiles[f.Path] = f
	}

	var delta domain.Delta
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f.Path] = struct{}{}
		pe, ok := prevFiles[f.Path]
		if !ok {
			delta.Added++
			continue
		}
		switch {
		case f.Hash != "" && pe.Hash != "":
			if f.Hash != pe.Hash {
				delta.Changed++
			}
		case f.Size != pe.Size:
			delta.Changed++
		}
	}
	for path := range prevFiles {
		if _, ok := seen[path]; !ok {
			delta.Removed++
		}
	}
	return delta
}
