// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"strings"
	"testing"
)

func TestQuote(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		lang LangVariant
		want string
	}{
		{"", LangBash, "''"},
		{"foo", LangBash, "foo"},
		{"foo bar", LangBash, "'foo bar'"},
		{"foo$bar", LangBash, "'foo$bar'"},
		{"foo'bar", LangBash, `'foo'\''bar'`},
		{"if", LangBash, "'if'"},
		{"*.go", LangBash, "'*.go'"},
		{"~user", LangBash, "'~user'"},
		{"foo\nbar", LangBash, `$'foo\nbar'`},
		{"foo\x00bar", LangBash, ""},
		{"\x07", LangBash, `$'\a'`},
		{"\x07", LangPOSIX, ""},
	}
	for _, tc := range tests {
		got, err := Quote(tc.in, tc.lang)
		if tc.want == "" && tc.in != "" {
			if err == nil {
				t.Errorf("Quote(%q, %v) did not error", tc.in, tc.lang)
			}
			continue
		}
		if err != nil {
			t.Errorf("Quote(%q, %v) errored: %v", tc.in, tc.lang, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Quote(%q, %v) = %q, want %q", tc.in, tc.lang, got, tc.want)
		}
	}
}

func TestQuoteRoundTrip(t *testing.T) {
	t.Parallel()
	// Any successfully quoted string must parse back as exactly one
	// literal word.
	for _, in := range []string{"foo", "foo bar", "a'b\"c", "x\ty", "if"} {
		quoted, err := Quote(in, LangBash)
		if err != nil {
			t.Fatalf("Quote(%q): %v", in, err)
		}
		f, err := Parse([]byte("echo "+quoted), "", 0)
		if err != nil {
			t.Fatalf("parse of quoted %q (%s): %v", in, quoted, err)
		}
		if len(f.Stmts) != 1 {
			t.Fatalf("expected one statement for %q", in)
		}
		call, ok := f.Stmts[0].Cmd.(*CallExpr)
		if !ok || len(call.Args) != 2 {
			t.Fatalf("expected a two-word call for %q", in)
		}
		if !strings.Contains(quoted, in) && !strings.ContainsAny(in, "'\\\n\t\x07") {
			t.Errorf("quoted form %q lost the original %q", quoted, in)
		}
	}
}
