// Package query implements pure structural filters over a loaded
// snapshot. Filters never touch the filesystem; everything is answered
// from the document itself.
package query

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/harvestlab/harvest/internal/domain"
)

// Entity names accepted by Options.Entity.
const (
	EntityFiles  = "files"
	EntityChunks = "chunks"
)

// Options describes one query: the entity to filter and the predicates
// to apply. Zero values mean "no constraint".
type Options struct {
	Entity      string
	Language    string
	Kind        string
	PathGlob    string
	PathRegex   string
	SymbolRegex string
	Public      *bool

	// MinLines/MaxLines bound the inclusive chunk span length; 0 means
	// unbounded.
	MinLines int
	MaxLines int

	// ExportNamed matches files whose named-export set contains the
	// given symbol; HasDefaultExport matches files with any default
	// export. Both apply to the files entity only.
	ExportNamed      string
	HasDefaultExport bool

	// Fields projects the output to the named JSON fields as TSV.
	Fields []string
}

// Filter is a compiled Options: regexes validated up front so an invalid
// pattern fails before any entries are visited.
type Filter struct {
	opts       Options
	pathRe     *regexp.Regexp
	symbolRe   *regexp.Regexp
	pathGlobRe *regexp.Regexp
}

// Compile validates the options and compiles the patterns. Entity
// defaults to chunks.
func Compile(opts Options) (*Filter, error) {
	switch opts.Entity {
	case "":
		opts.Entity = EntityChunks
	case EntityFiles, EntityChunks:
	default:
		return nil, fmt.Errorf("entity must be %q or %q, got: %q", EntityFiles, EntityChunks, opts.Entity)
	}
	if opts.MinLines < 0 || opts.MaxLines < 0 {
		return nil, fmt.Errorf("line bounds must not be negative")
	}
	if opts.MinLines > 0 && opts.MaxLines > 0 && opts.MinLines > opts.MaxLines {
		return nil, fmt.Errorf("min-lines %d exceeds max-lines %d", opts.MinLines, opts.MaxLines)
	}

	f := &Filter{opts: opts}
	var err error
	if opts.PathRegex != "" {
		if f.pathRe, err = regexp.Compile(opts.PathRegex); err != nil {
			return nil, fmt.Errorf("invalid path-regex: %w", err)
		}
	}
	if opts.SymbolRegex != "" {
		if f.symbolRe, err = regexp.Compile(opts.SymbolRegex); err != nil {
			return nil, fmt.Errorf("invalid symbol-regex: %w", err)
		}
	}
	if opts.PathGlob != "" {
		if f.pathGlobRe, err = compileGlob(opts.PathGlob); err != nil {
			return nil, fmt.Errorf("invalid path-glob: %w", err)
		}
	}
	return f, nil
}

// Entity returns the compiled entity name.
func (f *Filter) Entity() string {
	return f.opts.Entity
}

// Fields returns the projection list, nil when none was requested.
func (f *Filter) Fields() []string {
	return f.opts.Fields
}

// Files returns the file entries matching the filter, in snapshot order.
func (f *Filter) Files(snap *domain.Snapshot) []domain.FileEntry {
	out := []domain.FileEntry{}
	for _, entry := range snap.Data {
		if !f.matchFile(entry) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

// Chunks returns the chunk entries matching the filter, in snapshot order.
func (f *Filter) Chunks(snap *domain.Snapshot) []domain.ChunkEntry {
	out := []domain.ChunkEntry{}
	for _, chunk := range snap.Chunks {
		if !f.matchChunk(chunk) {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

func (f *Filter) matchFile(entry domain.FileEntry) bool {
	if f.opts.Language != "" && entry.Language != f.opts.Language {
		return false
	}
	if f.pathGlobRe != nil && !f.pathGlobRe.MatchString(entry.Path) {
		return false
	}
	if f.pathRe != nil && !f.pathRe.MatchString(entry.Path) {
		return false
	}
	if f.opts.ExportNamed != "" {
		if entry.Exports == nil || !containsString(entry.Exports.Named, f.opts.ExportNamed) {
			return false
		}
	}
	if f.opts.HasDefaultExport {
		if entry.Exports == nil || entry.Exports.Default == "" {
			return false
		}
	}
	return true
}

func (f *Filter) matchChunk(chunk domain.ChunkEntry) bool {
	if f.opts.Language != "" && chunk.Language != f.opts.Language {
		return false
	}
	if f.opts.Kind != "" && chunk.Kind != f.opts.Kind {
		return false
	}
	if f.pathGlobRe != nil && !f.pathGlobRe.MatchString(chunk.FilePath) {
		return false
	}
	if f.pathRe != nil && !f.pathRe.MatchString(chunk.FilePath) {
		return false
	}
	if f.symbolRe != nil && !f.symbolRe.MatchString(chunk.Symbol) {
		return false
	}
	if f.opts.Public != nil && chunk.Public != *f.opts.Public {
		return false
	}
	span := chunk.EndLine - chunk.StartLine + 1
	if f.opts.MinLines > 0 && span < f.opts.MinLines {
		return false
	}
	if f.opts.MaxLines > 0 && span > f.opts.MaxLines {
		return false
	}
	return true
}

// Run executes the compiled filter against a snapshot and writes results
// to w: TSV when a projection was requested, one JSON object per line
// otherwise.
func (f *Filter) Run(snap *domain.Snapshot, w io.Writer) error {
	var rows []map[string]any
	var err error
	if f.opts.Entity == EntityFiles {
		rows, err = toRows(f.Files(snap))
	} else {
		rows, err = toRows(f.Chunks(snap))
	}
	if err != nil {
		return err
	}

	if len(f.opts.Fields) > 0 {
		return WriteTSV(w, f.opts.Fields, rows)
	}
	return WriteJSONLines(w, rows)
}

// toRows converts entries to generic field maps through their JSON form,
// so projection field names are exactly the wire names.
func toRows[T any](entries []T) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		var row map[string]any
		if err := json.Unmarshal(data, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteJSONLines writes one compact JSON object per row.
func WriteJSONLines(w io.Writer, rows []map[string]any) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteTSV writes the named fields of each row, tab-separated, one row
// per line. Missing fields render as empty strings.
func WriteTSV(w io.Writer, fields []string, rows []map[string]any) error {
	for _, row := range rows {
		cells := make([]string, len(fields))
		for i, field := range fields {
			cells[i] = renderCell(row[field])
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return nil
}

func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; keep integers integral.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

// compileGlob translates a path glob into an anchored regexp: "**" spans
// separators, "*" stops at them, "?" matches one character.
func compileGlob(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(glob); i++ {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				sb.WriteString(".*")
				i++
			} else {
				sb.WriteString("[^/]*")
			}
		case '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
