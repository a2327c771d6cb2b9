package builtin

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

func init() {
	Register("tar", tarBuiltin)
	Register("gzip", gzipBuiltin)
	Register("gunzip", gunzipBuiltin)
}

// tarBuiltin supports the handful of invocations scripts actually use:
// "tar -czf out.tar.gz file..." to create and "tar -xzf in.tar.gz -C dir"
// to extract, both against the VFS rather than a real archive file.
func tarBuiltin(c *Context) error {
	var create, extract, list, gz bool
	var file, destDir string
	var members []string
	for i := 1; i < len(c.Args); i++ {
		a := c.Args[i]
		switch {
		case strings.Contains(a, "c") && strings.HasPrefix(a, "-"):
			create = true
		case strings.Contains(a, "x") && strings.HasPrefix(a, "-"):
			extract = true
		case strings.Contains(a, "t") && strings.HasPrefix(a, "-") && !strings.Contains(a, "x"):
			list = true
		}
		if strings.HasPrefix(a, "-") && strings.Contains(a, "z") {
			gz = true
		}
		if strings.HasPrefix(a, "-") && strings.HasSuffix(a, "f") && i+1 < len(c.Args) {
			i++
			file = c.Args[i]
			continue
		}
		if a == "-C" && i+1 < len(c.Args) {
			i++
			destDir = c.Args[i]
			continue
		}
		if !strings.HasPrefix(a, "-") {
			members = append(members, a)
		}
	}
	if file == "" {
		c.Errorf("missing archive path (-f)")
		return ExitStatus(2)
	}
	switch {
	case create:
		return tarCreate(c, file, gz, members)
	case extract:
		return tarExtract(c, file, gz, destDir)
	case list:
		return tarList(c, file, gz)
	default:
		c.Errorf("one of -c/-x/-t is required")
		return ExitStatus(2)
	}
}

func tarCreate(c *Context, file string, gz bool, members []string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, m := range members {
		if err := addTarMember(c, tw, vfsPath(c, m), m); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	if err := tw.Close(); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	out := buf.Bytes()
	if gz {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		gw.Write(out)
		gw.Close()
		out = gzBuf.Bytes()
	}
	if err := c.FS.WriteFile(vfsPath(c, file), out, 0o644); err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	return nil
}

func addTarMember(c *Context, tw *tar.Writer, path, name string) error {
	info, err := c.FS.Stat(path, false)
	if err != nil {
		return err
	}
	if info.IsDir() {
		entries, err := c.FS.ReadDir(path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := addTarMember(c, tw, path+"/"+e.Name(), name+"/"+e.Name()); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := c.FS.ReadFile(path)
	if err != nil {
		return err
	}
	hdr := &tar.Header{Name: name, Size: int64(len(data)), Mode: int64(info.Mode().Perm())}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = tw.Write(data)
	return err
}

func openTarReader(c *Context, file string, gz bool) (*tar.Reader, error) {
	data, err := c.FS.ReadFile(vfsPath(c, file))
	if err != nil {
		return nil, err
	}
	r := io.Reader(bytes.NewReader(data))
	if gz {
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		r = gr
	}
	return tar.NewReader(r), nil
}

func tarExtract(c *Context, file string, gz bool, destDir string) error {
	tr, err := openTarReader(c, file, gz)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	if destDir == "" {
		destDir = c.Dir
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		target := vfsPath(c, destDir) + "/" + hdr.Name
		if hdr.Typeflag == tar.TypeDir {
			c.FS.Mkdir(target, 0o755)
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		if err := c.FS.WriteFile(target, data, 0o644); err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
	}
	return nil
}

func tarList(c *Context, file string, gz bool) error {
	tr, err := openTarReader(c, file, gz)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			c.Errorf("%v", err)
			return ExitStatus(1)
		}
		fmt.Fprintln(c.Stdout, hdr.Name)
	}
	return nil
}

func gzipBuiltin(c *Context) error {
	data, err := readAllBytes(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	gw.Write(data)
	gw.Close()
	c.Stdout.Write(buf.Bytes())
	return nil
}

func gunzipBuiltin(c *Context) error {
	data, err := readAllBytes(c, c.Args[1:])
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(2)
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		c.Errorf("%v", err)
		return ExitStatus(1)
	}
	c.Stdout.Write(out)
	return nil
}
