package harvest

import (
	"regexp"
	"sort"
	"strings"

	"github.com/harvestlab/harvest/internal/domain"
)

// ident matches a JavaScript identifier.
const ident = `[A-Za-z_$][\w$]*`

// Chunk start markers, all anchored at start-of-line. Anchoring is the
// accepted heuristic for staying out of strings and comments without a
// real parser.
var (
	exportDefaultFunctionRe = regexp.MustCompile(`(?m)^export\s+default\s+function(?:\s+(` + ident + `))?`)
	exportDefaultClassRe    = regexp.MustCompile(`(?m)^export\s+default\s+class(?:\s+(` + ident + `))?`)
	exportDefaultWrapperRe  = regexp.MustCompile(`(?m)^export\s+default\s+(?:memo|forwardRef|observer|reactMemo)\(\s*(` + ident + `)\s*\)`)
	exportDefaultRefRe      = regexp.MustCompile(`(?m)^export\s+default\s+(` + ident + `)`)
	exportNamedRe           = regexp.MustCompile(`(?m)^export\s+(?:const|let|var|function|class)\s+(` + ident + `)\b`)
	componentConstRe        = regexp.MustCompile(`(?m)^const\s+([A-Z][A-Za-z0-9_]*)\s*=\s*\(`)
	componentFnRe           = regexp.MustCompile(`(?m)^function\s+([A-Z][A-Za-z0-9_]*)\s*\(`)
	functionRe              = regexp.MustCompile(`(?m)^function\s+(` + ident + `)\s*\(`)
	classRe                 = regexp.MustCompile(`(?m)^class\s+(` + ident + `)\b`)
)

// Export manifest patterns, deliberately unanchored: the manifest reflects
// the whole module surface, not chunk boundaries.
var (
	manifestDefaultFunctionRe = regexp.MustCompile(`export\s+default\s+function(?:\s+(` + ident + `))?`)
	manifestDefaultClassRe    = regexp.MustCompile(`export\s+default\s+class(?:\s+(` + ident + `))?`)
	manifestDefaultWrapperRe  = regexp.MustCompile(`export\s+default\s+(?:memo|forwardRef|observer|reactMemo)\(\s*(` + ident + `)\s*\)`)
	manifestDefaultRefRe      = regexp.MustCompile(`export\s+default\s+(` + ident + `)\b`)
	manifestNamedDeclRe       = regexp.MustCompile(`export\s+(?:const|let|var|function|class)\s+(` + ident + `)\b`)
	manifestExportBlockRe     = regexp.MustCompile(`export\s*\{\s*([^}]+)\s*\}`)
	manifestAliasRe           = regexp.MustCompile(`^(` + ident + `)\s+as\s+(` + ident + `)`)
	manifestIdentRe           = regexp.MustCompile(`^(` + ident + `)`)
	manifestModuleExportsRe   = regexp.MustCompile(`(?s)module\.exports\s*=\s*\{([^}]+)\}`)
	manifestExportsKeyRe      = regexp.MustCompile(`^(` + ident + `)\s*:`)
	manifestExportsAssignRe   = regexp.MustCompile(`exports\.(` + ident + `)\s*=`)
)

// defaultRefKeywords are captures of the bare default-export pattern that
// are declaration keywords or known wrapper calls, not referenced symbols.
var defaultRefKeywords = map[string]bool{
	"function":   true,
	"class":      true,
	"memo":       true,
	"forwardRef": true,
	"observer":   true,
	"reactMemo":  true,
}

// marker is one detected chunk start: a line number, the marker kind, and
// the symbol it introduces.
type marker struct {
	line   int
	kind   string
	symbol string
}

// JSTSChunks partitions JS/TS source into top-level chunks. Every marker
// opens a chunk that runs to the line before the next marker (clamped so
// same-line markers keep valid ranges); the last chunk runs to end of
// file. With no markers at all the whole file becomes one chunk.
func JSTSChunks(src, path string) []domain.ChunkEntry {
	language := Classify(path)
	markers := collectMarkers(src, Stem(path))
	if len(markers) == 0 {
		return []domain.ChunkEntry{WholeFileChunk(path, language, src)}
	}

	loc := LineCount(src)
	chunks := make([]domain.ChunkEntry, 0, len(markers))
	for i, m := range markers {
		end := loc
		if i+1 < len(markers) {
			end = markers[i+1].line - 1
		}
		if end < m.line {
			end = m.line
		}
		chunk := domain.ChunkEntry{
			ID:        ChunkID(path, m.line, end),
			FilePath:  path,
			Language:  language,
			Kind:      m.kind,
			Symbol:    m.symbol,
			StartLine: m.line,
			EndLine:   end,
			Public:    strings.HasPrefix(m.kind, "export"),
		}
		if text := ExtractLines(src, m.line, end); text != "" {
			chunk.Hash = HashText(text)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func collectMarkers(src, stem string) []marker {
	seen := make(map[marker]bool)
	var markers []marker
	add := func(byteOffset int, kind, symbol string) {
		m := marker{line: lineAt(src, byteOffset), kind: kind, symbol: symbol}
		if !seen[m] {
			seen[m] = true
			markers = append(markers, m)
		}
	}

	for _, m := range exportDefaultFunctionRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindExportDefault, groupOr(src, m, stem))
	}
	for _, m := range exportDefaultClassRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindExportDefault, groupOr(src, m, stem))
	}
	for _, m := range exportDefaultWrapperRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindExportDefaultRef, src[m[2]:m[3]])
	}
	for _, m := range exportDefaultRefRe.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		if defaultRefKeywords[name] {
			continue
		}
		add(m[0], domain.KindExportDefaultRef, name)
	}
	for _, m := range exportNamedRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindExportNamed, src[m[2]:m[3]])
	}
	for _, m := range componentConstRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindComponentConst, src[m[2]:m[3]])
	}
	for _, m := range componentFnRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindComponentFn, src[m[2]:m[3]])
	}
	for _, m := range functionRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindFunction, src[m[2]:m[3]])
	}
	for _, m := range classRe.FindAllStringSubmatchIndex(src, -1) {
		add(m[0], domain.KindClass, src[m[2]:m[3]])
	}

	sort.Slice(markers, func(i, j int) bool {
		a, b := markers[i], markers[j]
		if a.line != b.line {
			return a.line < b.line
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.symbol < b.symbol
	})
	return markers
}

// ExtractJSTSExports builds the export manifest for a module: the default
// export name (declaration name, wrapped identifier, or the file stem for
// anonymous declarations) and the sorted set of named exports, including
// re-export aliases and CommonJS-style assignments.
func ExtractJSTSExports(src, stem string) *domain.Exports {
	var defaultName string
	if m := manifestDefaultFunctionRe.FindStringSubmatch(src); m != nil {
		defaultName = firstNonEmpty(m[1], stem)
	} else if m := manifestDefaultClassRe.FindStringSubmatch(src); m != nil {
		defaultName = firstNonEmpty(m[1], stem)
	} else if m := manifestDefaultWrapperRe.FindStringSubmatch(src); m != nil {
		defaultName = m[1]
	} else if m := manifestDefaultRefRe.FindStringSubmatch(src); m != nil && !defaultRefKeywords[m[1]] {
		defaultName = m[1]
	}

	named := make(map[string]bool)
	for _, m := range manifestNamedDeclRe.FindAllStringSubmatch(src, -1) {
		named[m[1]] = true
	}
	for _, block := range manifestExportBlockRe.FindAllStringSubmatch(src, -1) {
		for _, part := range strings.Split(block[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if m := manifestAliasRe.FindStringSubmatch(part); m != nil {
				named[m[2]] = true
			} else if m := manifestIdentRe.FindStringSubmatch(part); m != nil {
				named[m[1]] = true
			}
		}
	}
	for _, block := range manifestModuleExportsRe.FindAllStringSubmatch(src, -1) {
		for _, part := range strings.Split(block[1], ",") {
			part = strings.TrimSpace(part)
			if m := manifestExportsKeyRe.FindStringSubmatch(part); m != nil {
				named[m[1]] = true
			} else if m := manifestIdentRe.FindStringSubmatch(part); m != nil {
				named[m[1]] = true
			}
		}
	}
	for _, m := range manifestExportsAssignRe.FindAllStringSubmatch(src, -1) {
		named[m[1]] = true
	}

	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	return &domain.Exports{Default: defaultName, Named: names}
}

// lineAt returns the 1-based line number of a byte offset.
func lineAt(src string, offset int) int {
	return strings.Count(src[:offset], "\n") + 1
}

func groupOr(src string, m []int, fallback string) string {
	if len(m) > 3 && m[2] >= 0 {
		return src[m[2]:m[3]]
	}
	return fallback
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
