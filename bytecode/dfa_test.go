package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDFA(t *testing.T, pattern string) *DFA {
	t.Helper()
	d, err := BuildDFA(pattern)
	require.NoError(t, err, pattern)
	return d
}

func TestDFABasicMatching(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"^test_", "test_foo", true},
		{"^test_", "mytest_foo", false},
		{"^test_", "test", false},
		{"foo", "a foo b", true},
		{"foo", "fo", false},
		{"bar$", "foobar", true},
		{"bar$", "barfoo", false},
		{"^x$", "x", true},
		{"^x$", "xx", false},
		{"a+b", "aaab", true},
		{"a+b", "b", false},
		{"a*b", "b", true},
		{"a?b", "ab", true},
		{"a?b", "aab", true}, // unanchored: matches at offset 1
		{"[a-c]+", "bca", true},
		{"[a-c]+", "xyz", false},
		{"(ab|cd)+", "cdab", true},
		{"a.c", "abc", true},
		{"a.c", "a\nc", false},
		{"colou?r", "color", true},
		{"colou?r", "colour", true},
		{"x{2,3}", "xx", true},
		{"x{2,3}", "x", false},
	}
	for _, tt := range tests {
		d := mustDFA(t, tt.pattern)
		assert.Equal(t, tt.want, d.Match([]byte(tt.input)), "%q =~ %q", tt.input, tt.pattern)
	}
}

func TestDFACaseFold(t *testing.T) {
	d := mustDFA(t, "(?i)abc")
	assert.True(t, d.Match([]byte("xAbCy")))
	assert.False(t, d.Match([]byte("ab")))
}

func TestDFAUTF8Literal(t *testing.T) {
	d := mustDFA(t, "héllo")
	assert.True(t, d.Match([]byte("say héllo now")))
	assert.False(t, d.Match([]byte("say hello now")))
}

func TestDFAEmptyPatternRejected(t *testing.T) {
	_, err := BuildDFA("")
	assert.ErrorIs(t, err, ErrEmptyRegex)
	assert.ErrorIs(t, ValidateRegex(""), ErrEmptyRegex)
}

func TestDFAUnsupportedFeatures(t *testing.T) {
	patterns := []string{
		`(?P<name>x)`, // named capture
		`\bword\b`,    // word boundary
		`[α-ω]`,       // non-ASCII class
		`x{100}`,      // huge repetition
	}
	for _, p := range patterns {
		_, err := BuildDFA(p)
		assert.ErrorIs(t, err, ErrUnsupportedRegex, p)
		assert.ErrorIs(t, ValidateRegex(p), ErrUnsupportedRegex, p)
	}
	// Go's syntax package rejects these outright; they still classify as
	// unsupported.
	for _, p := range []string{`(?=x)`, `a\1`} {
		_, err := BuildDFA(p)
		assert.ErrorIs(t, err, ErrUnsupportedRegex, p)
	}
}

func TestDFASerializationRoundTrip(t *testing.T) {
	patterns := []string{"^test_", "(ab|cd)+x?", "hello$", "[a-z0-9_]+"}
	inputs := []string{"", "test_", "abx", "cd", "hello", "zz9_", "X"}
	for _, p := range patterns {
		d := mustDFA(t, p)
		blob := d.Serialize()
		decoded, consumed, err := DeserializeDFA(blob)
		require.NoError(t, err, p)
		assert.Equal(t, len(blob), consumed, p)
		assert.Equal(t, d.StateCount(), decoded.StateCount(), p)
		for _, in := range inputs {
			assert.Equal(t, d.Match([]byte(in)), decoded.Match([]byte(in)), "%q on %q", p, in)
		}
	}
}

func TestDFADeserializeRejectsTruncation(t *testing.T) {
	d := mustDFA(t, "abc")
	blob := d.Serialize()
	_, _, err := DeserializeDFA(blob[:3])
	assert.Error(t, err)
	_, _, err = DeserializeDFA(blob[:len(blob)-10])
	assert.Error(t, err)
}
