package builtin

import (
	"strings"

	"go.uber.org/zap"
)

func init() {
	Register("curl", curlBuiltin)
	Register("wget", wgetBuiltin)
}

func curlBuiltin(c *Context) error {
	return doHTTP(c, "curl")
}

func wgetBuiltin(c *Context) error {
	return doHTTP(c, "wget")
}

func doHTTP(c *Context, name string) error {
	if c.HTTP == nil {
		c.Errorf("network access is disabled for this engine")
		return ExitStatus(6)
	}
	method := "GET"
	var url, outFile string
	var body strings.Reader
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		switch {
		case (a == "-X" || a == "--request") && i+1 < len(c.Args):
			i++
			method = c.Args[i]
		case (a == "-d" || a == "--data") && i+1 < len(c.Args):
			i++
			body = *strings.NewReader(c.Args[i])
			if method == "GET" {
				method = "POST"
			}
		case (a == "-o" || a == "-O") && i+1 < len(c.Args):
			i++
			outFile = c.Args[i]
		case strings.HasPrefix(a, "-"):
		default:
			url = a
		}
	}
	if url == "" {
		c.Errorf("missing URL")
		return ExitStatus(2)
	}
	if c.Logger != nil {
		c.Logger.Debug("http request", zap.String("builtin", name), zap.String("url", url), zap.String("method", method))
	}
	status, respBody, err := c.HTTP.Do(c.Ctx, method, url, &body)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	if outFile != "" {
		if err := c.FS.WriteFile(vfsPath(c, outFile), respBody, 0o644); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	} else {
		c.Stdout.Write(respBody)
	}
	if status >= 400 {
		return ExitStatus(22)
	}
	return nil
}
