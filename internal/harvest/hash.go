package harvest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ChunkID derives the stable chunk identifier from path and line range
// only. Content never participates: editing a chunk body in place keeps
// its id, while a shift of its line range produces a new one.
func ChunkID(path string, startLine, endLine int) string {
	return HashText(fmt.Sprintf("%s:%d:%d", path, startLine, endLine))
}

// HashText returns the hex SHA-256 of a string. Used for chunk-text
// integrity hashes, kept separate from ChunkID so reuse logic and
// change detection stay decoupled.
func HashText(s string) string {
	return HashBytes([]byte(s))
}

// HashBytes returns the hex SHA-256 of raw bytes. File-level hashes are
// computed over the bytes as read from disk, before any decoding.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
