// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playlist

import (
	"bytes"
	"strings"
	"testing"
)

// FuzzWriteConcatManifest checks that any newline-free path survives a
// write/parse cycle with quoting intact.
func FuzzWriteConcatManifest(f *testing.F) {
	f.Add("/media/a.mp4")
	f.Add("/media/it's.mp4")
	f.Add("''''")
	f.Add("/Unicode Тест.mkv")

	f.Fuzz(func(t *testing.T, path string) {
		if path == "" || strings.ContainsAny(path, "\r\n") {
			return
		}
		if strings.TrimSpace(path) != path {
			return
		}

		var buf bytes.Buffer
		if err := WriteConcatManifest(&buf, []MediaItem{{Path: path}}, 1); err != nil {
			t.Fatalf("WriteConcatManifest failed: %v", err)
		}
		got, err := ParseConcatManifest(buf.String())
		if err != nil {
			t.Fatalf("ParseConcatManifest failed: %v\n%s", err, buf.String())
		}
		if len(got) != 1 || got[0] != path {
			t.Fatalf("path mismatch: want %q got %q", path, got)
		}
	})
}
