package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/pretty"
)

// render writes v as indented JSON, optionally with terminal colors.
func render(w io.Writer, v interface{}, color bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	out := pretty.Pretty(data)
	if color {
		out = pretty.Color(out, nil)
	}
	_, err = w.Write(out)
	return err
}
