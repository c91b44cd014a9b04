package textnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Industrial HVAC", want: "industrial hvac"},
		{name: "strips digits and punctuation", in: "Call 555-1234, now!", want: "call  now"},
		{name: "keeps whitespace runs", in: "a \t\n b", want: "a \t\n b"},
		{name: "drops non latin letters", in: "Café Zürich", want: "caf zrich"},
		{name: "symbols only", in: "$1.2bn ©®", want: "bn "},
		{name: "empty", in: "", want: ""},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotentAndAlphabet(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"We provide HVAC Services across 12 states.",
		"ACQUIRED BY Acme Corp. — 2019 ✓",
		"  mixed\tCASE\r\nline\vfeed\f ",
		"日本語 text ÄÖÜ ß",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
		for _, r := range once {
			ok := (r >= 'a' && r <= 'z') || isSpace(r)
			require.Truef(t, ok, "unexpected rune %q in %q", r, once)
		}
	}
}
