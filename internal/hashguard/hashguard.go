// Package hashguard computes and validates the automation_hash protocol
// that distinguishes Reconciler-authored mapping rows from rows an operator
// has edited by hand.
package hashguard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
)

// hashPrefix versions the hash derivation. Bump it whenever the frozen
// field set for an entity kind changes shape, per spec.md §9 Open Question 1.
const hashPrefix = "v1:"

// Field is one entry of the automation_hash field set. Fields must be
// passed in the frozen declaration order from spec.md §6 — order is part
// of the hash, not an implementation detail.
type Field struct {
	Key   string
	Value any
}

// F is a small constructor to keep call sites in reconcile/*.go readable:
// hashguard.Compute(hashguard.F("migration_status", row.Status), ...).
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Compute produces the SHA-256 automation_hash over the canonical JSON
// encoding of fields: stable key order (caller-supplied, not sorted),
// explicit JSON null for nil values, UTF-8 preserved verbatim, and no
// HTML-escaping of '<', '>', '&' — so the same logical value always
// serializes to the same bytes regardless of which driver decoded it.
func Compute(fields []Field) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, f.Key)
		buf.WriteByte(':')
		writeJSONValue(&buf, f.Value)
	}
	buf.WriteByte('}')

	sum := sha256.Sum256(append([]byte(hashPrefix), buf.Bytes()...))
	return hex.EncodeToString(sum[:])
}

func writeJSONString(buf *bytes.Buffer, s string) {
	writeJSONValue(buf, s)
}

func writeJSONValue(buf *bytes.Buffer, v any) {
	var inner bytes.Buffer
	enc := json.NewEncoder(&inner)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Only reachable for values that cannot be represented in JSON at
		// all (channels, funcs); every caller in this codebase passes
		// strings, numbers, bools, times (via .Format) or nil.
		panic("hashguard: unencodable field value: " + err.Error())
	}
	// Encode appends a trailing newline; the field set never contains one.
	buf.Write(bytes.TrimRight(inner.Bytes(), "\n"))
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// IsValidHash reports whether s is a well-formed automation_hash: 64
// lowercase hex characters.
func IsValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

// IsManualOverride reports whether storedHash represents a row an operator
// touched outside the Reconciler: non-empty, validly formed, and different
// from the hash the Reconciler would write today. A malformed stored hash
// (including empty) is treated as "never hashed", not an override, per
// spec.md §4.2.
func IsManualOverride(storedHash, currentHash string) bool {
	if !IsValidHash(storedHash) {
		return false
	}
	return storedHash != currentHash
}
