package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

const keyPrefix = "snap:"

// Key maps a snapshot name to its redis key. The readable part is
// sanitized and truncated; the hash keeps distinct names apart.
func Key(name string) string {
	safe := sanitizeForKey(strings.TrimSpace(name))

	const maxNameLen = 80
	if len(safe) > maxNameLen {
		safe = safe[:maxNameLen]
	}
	return fmt.Sprintf("%s%s:%016x", keyPrefix, safe, xxhash.Sum64String(name))
}

// Digest fingerprints the records' JSON encoding.
func Digest(records []model.Feature) (string, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(records); err != nil {
		return "", fmt.Errorf("digest snapshot: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(buf.Bytes())), nil
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		var out rune
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
