// Package checksum fingerprints export and backup artifacts.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Header carries the artifact digest on download responses.
const Header = "X-Checksum-Sha256"

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns a strong entity tag for data.
func ETag(data []byte) string {
	return `"` + Sum(data) + `"`
}

// Matches reports whether an If-None-Match header value names data's tag.
func Matches(ifNoneMatch string, data []byte) bool {
	if ifNoneMatch == "" {
		return false
	}
	tag := ETag(data)
	for _, v := range strings.Split(ifNoneMatch, ",") {
		v = strings.TrimSpace(v)
		if v == "*" || v == tag || strings.TrimPrefix(v, "W/") == tag {
			return true
		}
	}
	return false
}
