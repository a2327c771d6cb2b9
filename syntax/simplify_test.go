// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"bytes"
	"strings"
	"testing"
)

var simplifyTests = []struct {
	in   string
	want string // a substring the printed simplified form must contain
	gone string // a substring that must no longer appear, if any
}{
	{"echo $((${x} + 1))", "$((x + 1))", "${x}"},
	{"echo $(( (x) ))", "$((x))", ""},
	{"[[ ! -z $x ]]", "-n $x", "-z"},
	{"[[ ! -n $x ]]", "-z $x", "-n $x"},
	{"[[ ! $x == y ]]", "$x != y", "=="},
	{"[[ -n \"$x\" ]]", "-n $x", "\"$x\""},
	{"echo $( (echo nested) )", "$(echo nested)", ""},
}

func TestSimplify(t *testing.T) {
	t.Parallel()
	for _, tc := range simplifyTests {
		t.Run("", func(t *testing.T) {
			f, err := Parse([]byte(tc.in), "", 0)
			if err != nil {
				t.Fatalf("parse %q: %v", tc.in, err)
			}
			Simplify(f)
			var buf bytes.Buffer
			if err := Fprint(&buf, f); err != nil {
				t.Fatal(err)
			}
			got := buf.String()
			if !strings.Contains(got, tc.want) {
				t.Fatalf("Simplify(%q) printed %q; missing %q", tc.in, got, tc.want)
			}
			if tc.gone != "" && strings.Contains(got, tc.gone) {
				t.Fatalf("Simplify(%q) printed %q; still contains %q", tc.in, got, tc.gone)
			}
			// The simplified form must still parse.
			if _, err := Parse(buf.Bytes(), "", 0); err != nil {
				t.Fatalf("simplified %q does not reparse: %v", got, err)
			}
		})
	}
}
