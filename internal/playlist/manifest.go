// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package playlist

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// WriteConcatManifest renders items in ffmpeg concat demuxer syntax, repeated
// repeat times (values below 1 mean once).
func WriteConcatManifest(w io.Writer, items []MediaItem, repeat int) error {
	if len(items) == 0 {
		return ErrEmptyDirectory
	}
	if repeat < 1 {
		repeat = 1
	}
	buf := &bytes.Buffer{}
	for r := 0; r < repeat; r++ {
		for _, it := range items {
			if strings.ContainsAny(it.Path, "\n\r") {
				return fmt.Errorf("manifest: path contains newline: %q", it.Path)
			}
			buf.WriteString(fmt.Sprintf("file '%s'\n", quote(it.Path)))
		}
	}
	_, err := io.Copy(w, buf)
	return err
}

// quote escapes single quotes for the concat demuxer: ' becomes '\''.
func quote(p string) string {
	return strings.ReplaceAll(p, `'`, `'\''`)
}

// ErrManifestPath is returned by ParseConcatManifest for malformed lines.
var ErrManifestPath = errors.New("malformed manifest line")

// ParseConcatManifest reads back the paths of a manifest written by
// WriteConcatManifest.
func ParseConcatManifest(data string) ([]string, error) {
	var out []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "ffconcat ") {
			continue
		}
		rest, ok := strings.CutPrefix(line, "file '")
		if !ok || !strings.HasSuffix(rest, "'") {
			return nil, fmt.Errorf("%w: %q", ErrManifestPath, line)
		}
		rest = strings.TrimSuffix(rest, "'")
		out = append(out, strings.ReplaceAll(rest, `'\''`, `'`))
	}
	return out, nil
}
