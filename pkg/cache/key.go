package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// Key computes a stable cache key from an operation kind and its input.
// String inputs are normalized (trimmed, inner whitespace collapsed,
// lowercased) so that cosmetic edits to the same prompt share an entry;
// structured inputs are keyed by their canonical JSON encoding.
func Key(kind string, input any) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write(normalizedBytes(input))
	return fmt.Sprintf("%s:%x", kind, h.Sum(nil))
}

func normalizedBytes(input any) []byte {
	switch v := input.(type) {
	case string:
		return []byte(normalizeString(v))
	case []byte:
		return canonicalJSON(v)
	case json.RawMessage:
		return canonicalJSON(v)
	default:
		data, err := json.Marshal(input)
		if err != nil {
			return []byte(fmt.Sprintf("%v", input))
		}
		return data
	}
}

// canonicalJSON re-encodes a JSON document so that equivalent documents
// (key order, insignificant whitespace) hash identically. Invalid JSON is
// keyed by its raw bytes.
func canonicalJSON(raw []byte) []byte {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return raw
	}
	if s, ok := decoded.(string); ok {
		decoded = normalizeString(s)
	}
	data, err := json.Marshal(decoded)
	if err != nil {
		return raw
	}
	return data
}

func normalizeString(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
