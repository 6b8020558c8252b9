package hashguard_test

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/jcatrysse/jira2redmine/internal/hashguard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	fields := []hashguard.Field{
		hashguard.F("a", "hello/world"),
		hashguard.F("b", nil),
		hashguard.F("c", true),
		hashguard.F("d", 3.14),
	}
	h1 := hashguard.Compute(fields)
	h2 := hashguard.Compute(fields)
	assert.Equal(t, h1, h2)
	assert.True(t, hashguard.IsValidHash(h1))
}

func TestComputeOrderSensitive(t *testing.T) {
	a := hashguard.Compute([]hashguard.Field{hashguard.F("x", 1), hashguard.F("y", 2)})
	b := hashguard.Compute([]hashguard.Field{hashguard.F("y", 2), hashguard.F("x", 1)})
	assert.NotEqual(t, a, b, "field order is part of the hash input")
}

func TestComputeNoSlashEscaping(t *testing.T) {
	// A slash-containing string must be hashed with its slashes written
	// verbatim, not as "\/".
	got := hashguard.Compute([]hashguard.Field{hashguard.F("url", "https://example.com/a")})
	sum := sha256.Sum256([]byte(`v1:{"url":"https://example.com/a"}`))
	require.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestComputeBooleanCanonicalization(t *testing.T) {
	// Numeric-string booleans ("1"/"0") must be canonicalized to real
	// booleans *before* Compute is called (spec.md §9 Open Question 2);
	// Compute itself just needs to prove that bool(true) and string("1")
	// hash differently so callers can't accidentally skip that step.
	asBool := hashguard.Compute([]hashguard.Field{hashguard.F("flag", true)})
	asString := hashguard.Compute([]hashguard.Field{hashguard.F("flag", "1")})
	assert.NotEqual(t, asBool, asString)
}

func TestIsManualOverride(t *testing.T) {
	current := hashguard.Compute([]hashguard.Field{hashguard.F("a", 1)})

	assert.False(t, hashguard.IsManualOverride("", current), "never hashed is not an override")
	assert.False(t, hashguard.IsManualOverride("not-a-hash", current), "malformed is not an override")
	assert.False(t, hashguard.IsManualOverride(current, current), "matching hash is not an override")

	other := hashguard.Compute([]hashguard.Field{hashguard.F("a", 2)})
	assert.True(t, hashguard.IsManualOverride(other, current), "divergent valid hash is an override")
}

func TestIsManualOverrideRequiresLowercase(t *testing.T) {
	upper := "ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789"[:64]
	assert.False(t, hashguard.IsManualOverride(upper, "anything"))
}
