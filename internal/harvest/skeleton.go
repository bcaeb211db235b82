package harvest

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// RenderSkeleton returns a compact signature-level outline of src:
// decorators and def/class signatures for Python, class/function headers
// and export declarations for JS/TS, and a best-effort header grep for
// anything else. Output is deterministic and ordered as in source.
func RenderSkeleton(ctx context.Context, language, src string) string {
	lang := strings.ToLower(language)
	switch {
	case strings.HasPrefix(lang, "py"):
		return renderPythonSkeleton(ctx, src)
	case strings.Contains(lang, "typescript"), strings.HasPrefix(lang, "ts"),
		strings.Contains(lang, "javascript"), strings.HasPrefix(lang, "js"):
		return renderJSTSSkeleton(src)
	default:
		return renderCLikeSkeleton(src)
	}
}

// renderPythonSkeleton walks the full tree, nested definitions included,
// emitting decorator lines verbatim and signatures rebuilt from the parse
// tree so multi-line parameter lists collapse onto one line.
func renderPythonSkeleton(ctx context.Context, src string) string {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	data := []byte(src)

	tree, err := parser.ParseCtx(ctx, nil, data)
	if err != nil || tree == nil {
		return pythonHeaderFallback(src)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return pythonHeaderFallback(src)
	}

	lines := strings.Split(src, "\n")
	var out []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "decorator":
			if row := int(n.StartPoint().Row); row < len(lines) {
				out = append(out, strings.TrimRight(lines[row], " \t\r"))
			}
			return
		case "function_definition":
			out = append(out, pyFunctionSignature(n, data))
		case "class_definition":
			out = append(out, pyClassSignature(n, data))
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return strings.Join(out, "\n")
}

func pyFunctionSignature(def *sitter.Node, data []byte) string {
	var b strings.Builder
	if first := def.Child(0); first != nil && first.Type() == "async" {
		b.WriteString("async ")
	}
	b.WriteString("def ")
	b.WriteString(namedChildContent(def, "name", data))

	params := "()"
	if p := def.ChildByFieldName("parameters"); p != nil {
		params = collapseWhitespace(p.Content(data))
	}
	b.WriteString(params)

	if ret := def.ChildByFieldName("return_type"); ret != nil {
		b.WriteString(" -> ")
		b.WriteString(collapseWhitespace(ret.Content(data)))
	}
	b.WriteString(":")
	return b.String()
}

func pyClassSignature(def *sitter.Node, data []byte) string {
	sig := "class " + namedChildContent(def, "name", data)
	if supers := def.ChildByFieldName("superclasses"); supers != nil {
		if text := collapseWhitespace(supers.Content(data)); text != "()" {
			sig += text
		}
	}
	return sig + ":"
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// collapseWhitespace flattens a multi-line source fragment onto one line.
func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

var pyHeaderLineRe = regexp.MustCompile(`^\s*(class|def)\s+\w+`)

// pythonHeaderFallback grep-scans for decorator and def/class header
// lines when the source does not parse.
func pythonHeaderFallback(src string) string {
	var headers, decos []string
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "@"):
			decos = append(decos, strings.TrimRight(line, " \t\r"))
		case pyHeaderLineRe.MatchString(line):
			headers = append(headers, decos...)
			decos = nil
			head, _, _ := strings.Cut(line, ":")
			headers = append(headers, strings.TrimRight(head, " \t\r")+":")
		}
	}
	headers = append(headers, decos...)
	return strings.Join(headers, "\n")
}

var (
	jsSkeletonClassRe  = regexp.MustCompile(`(?m)^(export\s+)?class\s+([A-Za-z0-9_]+)\s*(extends\s+[A-Za-z0-9_.]+)?\s*\{`)
	jsSkeletonFuncRe   = regexp.MustCompile(`(?m)^(export\s+)?(async\s+)?function\s+([A-Za-z0-9_]+)\s*\([^)]*\)\s*\{`)
	jsSkeletonExportRe = regexp.MustCompile(`(?m)^export\s+(default\s+)?(const|let|var|function|class)\s+([A-Za-z0-9_]+)`)
)

// renderJSTSSkeleton lists class headers, then function headers, then
// export declarations, deduplicated in first-seen order.
func renderJSTSSkeleton(src string) string {
	var headers []string
	for _, m := range jsSkeletonClassRe.FindAllStringSubmatch(src, -1) {
		head := "class " + m[2]
		if ex := strings.TrimSpace(m[3]); ex != "" {
			head += " " + ex
		}
		if m[1] != "" {
			head = "export " + head
		}
		headers = append(headers, head+" { … }")
	}
	for _, m := range jsSkeletonFuncRe.FindAllStringSubmatch(src, -1) {
		head := "function " + m[3] + "(…) { … }"
		if m[1] != "" {
			head = "export " + head
		}
		headers = append(headers, head)
	}
	for _, m := range jsSkeletonExportRe.FindAllStringSubmatch(src, -1) {
		dflt := ""
		if strings.TrimSpace(m[1]) != "" {
			dflt = "default "
		}
		headers = append(headers, "export "+dflt+m[2]+" "+m[3]+" …")
	}
	return strings.Join(uniqueStable(headers), "\n")
}

var cLikeHeaderRe = regexp.MustCompile(`^\s*(class|[A-Za-z_][A-Za-z0-9_]*\s+\**[A-Za-z_][A-Za-z0-9_]*\s*\([^;{]*\)\s*)[{;]`)

func renderCLikeSkeleton(src string) string {
	var heads []string
	for _, line := range strings.Split(src, "\n") {
		if cLikeHeaderRe.MatchString(line) {
			heads = append(heads, strings.TrimRight(strings.TrimSpace(line), "{")+" { … }")
		}
	}
	return strings.Join(heads, "\n")
}

func uniqueStable(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
