// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package shell

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/bashkit-sh/bashkit/expand"
	"github.com/bashkit-sh/bashkit/syntax"
)

var mapTests = []struct {
	in   string
	want map[string]expand.Variable
}{
	{
		"a=x; b=y",
		map[string]expand.Variable{
			"a": {Set: true, Kind: expand.String, Str: "x"},
			"b": {Set: true, Kind: expand.String, Str: "y"},
		},
	},
	{
		"a=x; a=y; X=(a b c)",
		map[string]expand.Variable{
			"a": {Set: true, Kind: expand.String, Str: "y"},
			"X": {Set: true, Kind: expand.Indexed, List: []string{"a", "b", "c"}},
		},
	},
	{
		"a=$(echo foo | tr o a)",
		map[string]expand.Variable{
			"a": {Set: true, Kind: expand.String, Str: "faa"},
		},
	},
	{
		"a=$(echo foo); b=${a}bar",
		map[string]expand.Variable{
			"a": {Set: true, Kind: expand.String, Str: "foo"},
			"b": {Set: true, Kind: expand.String, Str: "foobar"},
		},
	},
}

var errTests = []struct {
	in   string
	want string
}{
	{
		"a=b; exit 1",
		"exit status 1",
	},
	{
		"curl https://example.com",
		"program not in whitelist: curl",
	},
}

func TestSourceNode(t *testing.T) {
	for i := range mapTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			tc := mapTests[i]
			t.Parallel()
			p := syntax.NewParser()
			file, err := p.Parse(strings.NewReader(tc.in), "")
			if err != nil {
				t.Fatal(err)
			}
			got, err := SourceNode(context.Background(), file)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(tc.want, got) {
				t.Fatalf("wanted:\n%#v\ngot:\n%#v", tc.want, got)
			}
		})
	}
}

func TestSourceNodeErr(t *testing.T) {
	for i := range errTests {
		t.Run(fmt.Sprintf("%02d", i), func(t *testing.T) {
			tc := errTests[i]
			t.Parallel()
			p := syntax.NewParser()
			file, err := p.Parse(strings.NewReader(tc.in), "")
			if err != nil {
				t.Fatal(err)
			}
			_, err = SourceNode(context.Background(), file)
			if err == nil {
				t.Fatal("wanted non-nil error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not match %q", err, tc.want)
			}
		})
	}
}

func TestSourceNodeContext(t *testing.T) {
	t.Parallel()
	p := syntax.NewParser()
	file, err := p.Parse(strings.NewReader("while true; do :; done"), "")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		_, err := SourceNode(ctx, file)
		errc <- err
	}()
	select {
	case err := <-errc:
		if err == nil {
			t.Fatal("wanted the infinite loop to be stopped by the context")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("context cancellation did not stop the script")
	}
}
