package builtin

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"unicode"
)

func init() {
	Register("od", odBuiltin)
	Register("xxd", xxdBuiltin)
	Register("hexdump", xxdBuiltin)
	Register("strings", stringsBuiltin)
	Register("base64", base64Builtin)
}

func readAllBytes(c *Context, paths []string) ([]byte, error) {
	if len(paths) == 0 {
		return io.ReadAll(c.Stdin)
	}
	return c.FS.ReadFile(vfsPath(c, paths[0]))
}

func odBuiltin(c *Context) error {
	data, err := readAllBytes(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(c.Stdout, "%07o", i)
		for _, b := range data[i:end] {
			fmt.Fprintf(c.Stdout, " %03o", b)
		}
		fmt.Fprintln(c.Stdout)
	}
	return nil
}

func xxdBuiltin(c *Context) error {
	data, err := readAllBytes(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(c.Stdout, "%08x: ", i)
		line := data[i:end]
		for j := 0; j < 16; j += 2 {
			if j < len(line) {
				fmt.Fprint(c.Stdout, hex.EncodeToString(line[j:min(j+2, len(line))]))
			}
			fmt.Fprint(c.Stdout, " ")
		}
		fmt.Fprint(c.Stdout, " ")
		for _, b := range line {
			if b >= 32 && b < 127 {
				fmt.Fprintf(c.Stdout, "%c", b)
			} else {
				fmt.Fprint(c.Stdout, ".")
			}
		}
		fmt.Fprintln(c.Stdout)
	}
	return nil
}

func stringsBuiltin(c *Context) error {
	minLen := 4
	var paths []string
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		if a == "-n" && i+1 < len(c.Args) {
			i++
			minLen, _ = strconv.Atoi(c.Args[i])
			continue
		}
		paths = append(paths, a)
	}
	data, err := readAllBytes(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var cur []rune
	flush := func() {
		if len(cur) >= minLen {
			fmt.Fprintln(c.Stdout, string(cur))
		}
		cur = cur[:0]
	}
	for _, r := range string(data) {
		if unicode.IsPrint(r) && r < unicode.MaxASCII {
			cur = append(cur, r)
		} else {
			flush()
		}
	}
	flush()
	return nil
}

func base64Builtin(c *Context) error {
	decode := false
	var paths []string
	for _, a := range c.Args[1:] {
		switch a {
		case "-d", "--decode":
			decode = true
		default:
			paths = append(paths, a)
		}
	}
	data, err := readAllBytes(c, paths)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	if decode {
		out, err := base64.StdEncoding.DecodeString(string(bytesTrimSpace(data)))
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		c.Stdout.Write(out)
		return nil
	}
	fmt.Fprintln(c.Stdout, base64.StdEncoding.EncodeToString(data))
	return nil
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpaceByte(b[start]) {
		start++
	}
	for end > start && isSpaceByte(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
