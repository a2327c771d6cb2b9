package builtin

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/itchyny/gojq"
)

func init() {
	Register("jq", jqBuiltin)
}

// jqBuiltin evaluates a jq filter against its input the same way the real
// jq program does, using the teacher pack's own gojq dependency rather
// than hand-rolling a JSON query language.
func jqBuiltin(c *Context) error {
	var raw bool
	var args []string
	for _, a := range c.Args[1:] {
		switch a {
		case "-r":
			raw = true
		default:
			args = append(args, a)
		}
	}
	if len(args) == 0 {
		c.Errorf("missing filter")
		return ExitStatus(2)
	}
	filter, paths := args[0], args[1:]

	query, err := gojq.Parse(filter)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}

	inputs, err := readAllInputs(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}

	exitCode := 0
	for _, in := range inputs {
		dec := json.NewDecoder(strings.NewReader(in))
		for {
			var v any
			if err := dec.Decode(&v); err != nil {
				if err == io.EOF {
					break
				}
				c.Errorf("%v", err)
				return ExitStatus(2)
			}
			iter := query.RunWithContext(c.Ctx, v)
			for {
				res, ok := iter.Next()
				if !ok {
					break
				}
				if err, ok := res.(error); ok {
					c.Errorf("%v", err)
					exitCode = 1
					continue
				}
				if raw {
					if s, ok := res.(string); ok {
						fmt.Fprintln(c.Stdout, s)
						continue
					}
				}
				out, _ := json.Marshal(res)
				fmt.Fprintln(c.Stdout, string(out))
			}
		}
	}
	if exitCode != 0 {
		return ExitStatus(exitCode)
	}
	return nil
}
