package textutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"bare word", "hello", "hello\n"},
		{"keeps terminator", "hello\n", "hello\n"},
		{"trailing spaces per line", "a  \nb \n", "a\nb\n"},
		{"trailing blank lines", "a\n\n\n", "a\n"},
		{"interior blank lines kept", "a\n\nb\n", "a\n\nb\n"},
		{"trailing spaces no newline", "a   ", "a\n"},
		{"carriage return escaped", "a\rb", `a\rb` + "\n"},
		{"tab escaped", "a\tb", `a\tb` + "\n"},
		{"control char escaped", "a\x07b", `a\x07b` + "\n"},
		{"interior spaces kept", "a  b\n", "a  b\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Clean(tc.in))
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	for _, s := range []string{
		"", "hello", "a  \n\nb\t\n\n\n", "x\r\ny  ", "mixed \x01 bytes\n",
	} {
		once := Clean(s)
		require.Equal(t, once, Clean(once), "input %q", s)
	}
}

func TestSnip(t *testing.T) {
	short := strings.Repeat("a", MaxStringLength)
	require.Equal(t, short, Snip(short))

	long := strings.Repeat("a", 3*MaxStringLength)
	snipped := Snip(long)
	require.LessOrEqual(t, len(snipped), MaxStringLength)
	require.Contains(t, snipped, "...snip...")
	require.True(t, strings.HasPrefix(snipped, "aaa"))
	require.True(t, strings.HasSuffix(snipped, "aaa"))
}

func TestReduce(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello   World\n", "hello world\n"},
		{"a\n\n\nb\n", "a\nb\n"},
		{"a\t\tb", "a b"},
		{"  leading\n", "leading\n"},
		{"UPPER lower\n", "upper lower\n"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Reduce(tc.in), "input %q", tc.in)
	}
}

func TestTrimToRect(t *testing.T) {
	require.Equal(t, "", TrimToRect("", 2, 5))

	require.Equal(t, "ab\ncd", TrimToRect("ab\ncd", 5, 5))

	got := TrimToRect("one\ntwo\nthree\nfour", 2, 80)
	require.Equal(t, "one\ntwo\n[...]", got)

	got = TrimToRect("abcdefgh", 5, 4)
	require.Equal(t, "abcd[...]", got)
}
