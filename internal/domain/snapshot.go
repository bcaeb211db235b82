package domain

// SchemaVersion identifies the snapshot document format produced by this
// tool. Readers should tolerate older minor revisions of the same family.
const SchemaVersion = "harvest/v1.2"

// Source types recorded in snapshot metadata.
const (
	SourceLocal  = "local"
	SourceGitHub = "github"
)

// Chunk kinds emitted by the extractors.
const (
	KindFunction         = "function"
	KindClass            = "class"
	KindExportDefault    = "export_default"
	KindExportDefaultRef = "export_default_ref"
	KindExportNamed      = "export_named"
	KindComponentConst   = "component_const"
	KindComponentFn      = "component_fn"
	KindFile             = "file"
)

// TruncatedReason values for FileEntry.TruncatedReason.
const (
	TruncatedSize        = "size"
	TruncatedNoContent   = "no-content"
	TruncatedPathOnly    = "path-only"
	TruncatedFetchFailed = "fetch-failed"
)

// FileEntry describes one harvested file: identity, metadata, content,
// and the language-specific symbol summary. Exports and PySymbols are
// mutually exclusive; both are nil for non-code files.
type FileEntry struct {
	// Name is the bare filename, Path the root-relative forward-slash path.
	Name string `json:"name"`
	Path string `json:"path"`

	// Size is the on-disk (or reported) byte size; Mtime is the
	// modification time in seconds since the epoch, nil for remote
	// sources that carry no timestamp.
	Size  int64    `json:"size"`
	Mtime *float64 `json:"mtime"`

	// Language is the classifier tag, empty when unrecognized.
	Language string `json:"language,omitempty"`

	// Hash is the SHA-256 of the raw file bytes, absent when the content
	// was never read.
	Hash string `json:"hash,omitempty"`

	// Truncated marks files whose content was deliberately not captured;
	// TruncatedReason says why (size, no-content, path-only, fetch-failed).
	Truncated       bool   `json:"truncated"`
	TruncatedReason string `json:"truncated_reason,omitempty"`

	// Exports is the JS/TS export manifest; PySymbols the Python
	// module-level symbol summary.
	Exports   *Exports   `json:"exports,omitempty"`
	PySymbols *PySymbols `json:"py_symbols,omitempty"`

	// Content is the full decoded text. A nil pointer means the content
	// was never read; a pointer to "" means the file is empty.
	Content *string `json:"content,omitempty"`
}

// ChunkEntry is one contiguous line range of a file, usually a top-level
// symbol. Line numbers are 1-based and inclusive.
type ChunkEntry struct {
	// ID is derived from (file_path, start_line, end_line) only; content
	// changes do not alter it, line-range shifts do.
	ID string `json:"id"`

	FilePath  string `json:"file_path"`
	Language  string `json:"language,omitempty"`
	Kind      string `json:"kind"`
	Symbol    string `json:"symbol"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	// Public reports whether the symbol is externally visible (exported
	// in JS/TS, not underscore-prefixed in Python).
	Public bool `json:"public"`

	// Hash is the SHA-256 of the exact chunk text, absent when the text
	// is empty or unavailable.
	Hash string `json:"hash,omitempty"`
}

// Exports summarizes a JS/TS module's externally visible symbols.
type Exports struct {
	Default string   `json:"default,omitempty"`
	Named   []string `json:"named"`
}

// PySymbols summarizes a Python module's top-level definitions. All holds
// the literal contents of a module-level __all__ list when present.
type PySymbols struct {
	Functions []string `json:"functions"`
	Classes   []string `json:"classes"`
	All       []string `json:"all"`
}

// Source records where a snapshot was harvested from.
type Source struct {
	Type    string  `json:"type"`
	Root    string  `json:"root"`
	Branch  *string `json:"branch"`
	Subpath string  `json:"subpath"`
}

// Counts aggregates the harvested set.
type Counts struct {
	TotalFiles      int            `json:"total_files"`
	TotalBytes      int64          `json:"total_bytes"`
	FilesByLanguage map[string]int `json:"files_by_language"`
}

// Delta compares a snapshot against its predecessor by path and hash.
type Delta struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Changed int `json:"changed"`
}

// Metadata is the snapshot header. Version and GeneratedAt are maintained
// by the watcher; one-shot harvests leave them unset.
type Metadata struct {
	Version     int    `json:"version,omitempty"`
	GeneratedAt int64  `json:"generated_at,omitempty"`
	Source      Source `json:"source"`
	Counts      Counts `json:"counts"`
	CreatedAt   string `json:"created_at"`
	Schema      string `json:"schema"`
	Delta       *Delta `json:"delta,omitempty"`
}

// Snapshot is the complete persisted document: header, one FileEntry per
// included file, and the flattened chunk list. Watch mode replaces the
// whole document on every flush; there is no partial mutation.
type Snapshot struct {
	Metadata Metadata     `json:"metadata"`
	Data     []FileEntry  `json:"data"`
	Chunks   []ChunkEntry `json:"chunks"`
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	ChunkFieldID       = "id"
	ChunkFieldFilePath = "file_path"
	ChunkFieldLanguage = "language"
	ChunkFieldKind     = "kind"
	ChunkFieldSymbol   = "symbol"
	ChunkFieldContent  = "content"
	ChunkFieldPublic   = "public"
)
