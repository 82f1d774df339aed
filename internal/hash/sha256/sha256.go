// Package sha256 provides the SHA-256 digests behind stable post ids.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultSize is the number of digest bytes kept in an id.
const DefaultSize = 16

// Hasher implements feeds.Hasher using SHA-256 truncated to size bytes.
type Hasher struct {
	size int
}

// New returns a hasher that keeps DefaultSize digest bytes.
func New() *Hasher {
	return &Hasher{size: DefaultSize}
}

func (h *Hasher) hash(data []byte) string {
	sum := sha256.Sum256(data)
	size := h.size
	if size <= 0 || size > sha256.Size {
		size = DefaultSize
	}
	return hex.EncodeToString(sum[:size])
}

// HashParts hashes the parts joined by a NUL separator, so ("ab","c") and
// ("a","bc") never collide.
func (h *Hasher) HashParts(parts ...string) string {
	return h.hash([]byte(strings.Join(parts, "\x00")))
}
