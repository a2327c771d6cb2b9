package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

func init() {
	Register("date", dateBuiltin)
	Register("sleep", sleepBuiltin)
	Register("timeout", timeoutBuiltin)
}

// now returns the Context's time source: NowFunc if the host configured
// one (so a sandboxed script's "date" output can be made reproducible
// instead of depending on wall-clock time), else time.Now in UTC.
func (c *Context) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now().UTC()
}

func dateBuiltin(c *Context) error {
	now := c.now()
	format := ""
	for _, a := range c.Args[1:] {
		if len(a) > 2 && a[0] == '+' {
			format = a[1:]
		}
	}
	if format == "" {
		fmt.Fprintln(c.Stdout, now.Format(time.UnixDate))
		return nil
	}
	// %s has no Go layout equivalent, so it is substituted here.
	parts := strings.Split(format, "%s")
	for i, p := range parts {
		parts[i] = now.Format(strftimeToGo(p))
	}
	fmt.Fprintln(c.Stdout, strings.Join(parts, strconv.FormatInt(now.Unix(), 10)))
	return nil
}

// strftimeToGo converts the handful of strftime verbs scripts actually
// use in "date +FORMAT" to Go's reference-time layout.
func strftimeToGo(f string) string {
	replacer := strings.NewReplacer(
		"%Y", "2006", "%m", "01", "%d", "02",
		"%H", "15", "%M", "04", "%S", "05",
		"%s", "", // epoch seconds are substituted by dateBuiltin
	)
	return replacer.Replace(f)
}

func sleepBuiltin(c *Context) error {
	if len(c.Args) < 2 {
		return nil
	}
	secs, err := strconv.ParseFloat(c.Args[1], 64)
	if err != nil {
		c.Errorf("invalid duration: %s", c.Args[1])
		return ExitStatus(2)
	}
	d := time.Duration(secs * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-c.Ctx.Done():
		return c.Ctx.Err()
	}
}

func timeoutBuiltin(c *Context) error {
	if len(c.Args) < 3 {
		c.Errorf("usage: timeout DURATION COMMAND [ARGS...]")
		return ExitStatus(2)
	}
	secs, err := strconv.ParseFloat(c.Args[1], 64)
	if err != nil {
		c.Errorf("invalid duration: %s", c.Args[1])
		return ExitStatus(2)
	}
	sub := c.Args[2:]
	fn, ok := Lookup(sub[0])
	if !ok {
		c.Errorf("%s: command not found", sub[0])
		return ExitStatus(127)
	}
	ctx, cancel := context.WithTimeout(c.Ctx, time.Duration(secs*float64(time.Second)))
	defer cancel()
	subCtx := *c
	subCtx.Ctx = ctx
	subCtx.Args = sub

	done := make(chan error, 1)
	go func() { done <- fn(&subCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ExitStatus(124)
	}
}
