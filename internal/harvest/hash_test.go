package harvest

import (
	"strings"
	"testing"
)

func TestChunkID_Deterministic(t *testing.T) {
	first := ChunkID("src/app.py", 1, 10)
	second := ChunkID("src/app.py", 1, 10)
	if first != second {
		t.Errorf("ChunkID not deterministic: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Errorf("ChunkID length = %d, want 64 hex chars", len(first))
	}
}

func TestChunkID_SensitiveToRange(t *testing.T) {
	base := ChunkID("src/app.py", 1, 10)

	tests := []struct {
		name  string
		path  string
		start int
		end   int
	}{
		{"end shifted by one", "src/app.py", 1, 11},
		{"start shifted by one", "src/app.py", 2, 10},
		{"different path", "src/other.py", 1, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChunkID(tt.path, tt.start, tt.end); got == base {
				t.Errorf("ChunkID(%q, %d, %d) collides with base id", tt.path, tt.start, tt.end)
			}
		})
	}
}

func TestChunkID_IgnoresContent(t *testing.T) {
	// Identity is positional: there is no content input at all. The same
	// range in two snapshots of the same file maps to the same id even if
	// the body changed in place.
	if ChunkID("a.js", 5, 9) != ChunkID("a.js", 5, 9) {
		t.Fatal("positional identity must be stable across calls")
	}
}

func TestHashText_MatchesHashBytes(t *testing.T) {
	text := "def main():\n    return 0\n"
	if HashText(text) != HashBytes([]byte(text)) {
		t.Error("HashText and HashBytes disagree on identical input")
	}
}

func TestHashBytes_KnownVector(t *testing.T) {
	// sha256("") is a standard constant; guards against accidental
	// double-hashing or encoding changes.
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashBytes(nil); got != want {
		t.Errorf("HashBytes(nil) = %q, want %q", got, want)
	}
	if got := HashText(""); got != want {
		t.Errorf("HashText(\"\") = %q, want %q", got, want)
	}
}

func TestHashText_DistinctInputs(t *testing.T) {
	a := HashText("export default Foo")
	b := HashText("export default Bar")
	if a == b {
		t.Error("distinct inputs must not collide")
	}
	if strings.ToLower(a) != a {
		t.Error("hash should be lowercase hex")
	}
}
