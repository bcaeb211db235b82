package harvest

import (
	"context"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/harvestlab/harvest/internal/domain"
)

// PyChunks extracts one chunk per top-level function or class definition,
// plus the module symbol summary. Nested definitions stay inside their
// parent's chunk; methods never produce chunks of their own.
//
// The extractor never fails: source that does not parse cleanly degrades
// to a single whole-file chunk with empty symbol sets.
func PyChunks(ctx context.Context, src, path string) ([]domain.ChunkEntry, *domain.PySymbols) {
	symbols := &domain.PySymbols{Functions: []string{}, Classes: []string{}, All: []string{}}
	fallback := func() ([]domain.ChunkEntry, *domain.PySymbols) {
		return []domain.ChunkEntry{WholeFileChunk(path, "python", src)}, symbols
	}

	if src == "" {
		return fallback()
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	data := []byte(src)

	tree, err := parser.ParseCtx(ctx, nil, data)
	if err != nil || tree == nil {
		return fallback()
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return fallback()
	}

	var chunks []domain.ChunkEntry
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		def := node
		if node.Type() == "decorated_definition" {
			if inner := node.ChildByFieldName("definition"); inner != nil {
				def = inner
			}
		}

		switch def.Type() {
		case "function_definition":
			name := namedChildContent(def, "name", data)
			if name == "" {
				continue
			}
			symbols.Functions = append(symbols.Functions, name)
			chunks = append(chunks, pyChunk(path, src, def, domain.KindFunction, name))
		case "class_definition":
			name := namedChildContent(def, "name", data)
			if name == "" {
				continue
			}
			symbols.Classes = append(symbols.Classes, name)
			chunks = append(chunks, pyChunk(path, src, def, domain.KindClass, name))
		case "expression_statement":
			if all := parseDunderAll(def, data); all != nil {
				symbols.All = all
			}
		}
	}

	sort.Strings(symbols.Functions)
	sort.Strings(symbols.Classes)

	if len(chunks) == 0 {
		return fallback()
	}
	return chunks, symbols
}

func pyChunk(path, src string, def *sitter.Node, kind, name string) domain.ChunkEntry {
	// Decorated definitions chunk from the def/class line; decorator lines
	// belong to the preceding chunk's tail, matching line-number reporting
	// of the original structural parse.
	start := int(def.StartPoint().Row) + 1
	end := int(def.EndPoint().Row) + 1
	if end < start {
		end = start
	}
	chunk := domain.ChunkEntry{
		ID:        ChunkID(path, start, end),
		FilePath:  path,
		Language:  "python",
		Kind:      kind,
		Symbol:    name,
		StartLine: start,
		EndLine:   end,
		Public:    !strings.HasPrefix(name, "_"),
	}
	if text := ExtractLines(src, start, end); text != "" {
		chunk.Hash = HashText(text)
	}
	return chunk
}

// parseDunderAll returns the string elements of a top-level
// `__all__ = [...]` (or tuple) assignment, or nil when the statement is
// something else. Non-literal elements are ignored silently.
func parseDunderAll(stmt *sitter.Node, data []byte) []string {
	if stmt.NamedChildCount() == 0 {
		return nil
	}
	assign := stmt.NamedChild(0)
	if assign.Type() != "assignment" {
		return nil
	}
	left := assign.ChildByFieldName("left")
	if left == nil || left.Type() != "identifier" || left.Content(data) != "__all__" {
		return nil
	}
	right := assign.ChildByFieldName("right")
	if right == nil {
		return nil
	}
	switch right.Type() {
	case "list", "tuple", "expression_list":
	default:
		return nil
	}

	all := []string{}
	for i := 0; i < int(right.NamedChildCount()); i++ {
		element := right.NamedChild(i)
		if element.Type() != "string" {
			continue
		}
		if value, ok := pyStringLiteral(element.Content(data)); ok {
			all = append(all, value)
		}
	}
	return all
}

// pyStringLiteral strips the quotes from a plain Python string literal.
// Prefixed (f/r/b) and unterminated forms are rejected.
func pyStringLiteral(text string) (string, bool) {
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(text, quote) && strings.HasSuffix(text, quote) && len(text) >= 2*len(quote) {
			return text[len(quote) : len(text)-len(quote)], true
		}
	}
	return "", false
}

func namedChildContent(node *sitter.Node, field string, data []byte) string {
	child := node.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(data)
}
