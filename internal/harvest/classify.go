package harvest

import (
	"path/filepath"
	"strings"
)

// languageByExtension maps lowercased file extensions to language tags.
// Extensions absent from this map classify as "" (unrecognized), which is
// not an error: such files still get a whole-file chunk.
var languageByExtension = map[string]string{
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".json": "json",
	".md":   "markdown",
	".yml":  "yaml",
	".yaml": "yaml",
	".toml": "toml",
	".sh":   "shell",
}

// Classify returns the language tag for a path, or "" when the extension
// is unknown. Pure lookup: no I/O, no state.
func Classify(path string) string {
	return languageByExtension[strings.ToLower(filepath.Ext(path))]
}

// IsJSTS reports whether a language tag belongs to the JavaScript/TypeScript
// family handled by the pattern-based extractor.
func IsJSTS(language string) bool {
	switch language {
	case "javascript", "javascriptreact", "typescript", "typescriptreact":
		return true
	}
	return false
}

// Stem returns the filename without its final extension, used as the
// fallback symbol name for whole-file chunks and anonymous default exports.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
