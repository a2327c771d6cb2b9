// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

//go:build gofuzz

package syntax

import "bytes"

// Fuzz is the go-fuzz entrypoint: any input the parser accepts must also
// survive a print-and-reparse round trip without an error.
func Fuzz(data []byte) int {
	f, err := Parse(data, "", 0)
	if err != nil {
		return 0
	}
	var buf bytes.Buffer
	if err := Fprint(&buf, f); err != nil {
		panic(err)
	}
	if _, err := Parse(buf.Bytes(), "", 0); err != nil {
		panic(err)
	}
	return 1
}
