// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"all interfaces", ":8080", false},
		{"loopback", "127.0.0.1:9000", false},
		{"ephemeral", "127.0.0.1:0", false},
		{"missing port", "localhost", true},
		{"port out of range", ":70000", true},
		{"named port", ":http", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("listen", tt.addr)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below", 0, 1, 10, true},
		{"above", 11, 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("value", tt.value, tt.min, tt.max)
			if tt.wantErr == v.IsValid() {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, v.Err())
			}
		})
	}
}

func TestValidator_Directory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("creates missing", func(t *testing.T) {
		dir := filepath.Join(root, "new", "nested")
		v := New()
		v.Directory("dir", dir, false)
		if !v.IsValid() {
			t.Fatalf("unexpected error: %v", v.Err())
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("directory not created: %v", err)
		}
	})

	t.Run("must exist", func(t *testing.T) {
		v := New()
		v.Directory("dir", filepath.Join(root, "absent"), true)
		if v.IsValid() {
			t.Fatal("expected error for missing directory")
		}
	})

	t.Run("file is not a directory", func(t *testing.T) {
		v := New()
		v.Directory("dir", file, false)
		if v.IsValid() {
			t.Fatal("expected error for regular file")
		}
	})

	t.Run("traversal", func(t *testing.T) {
		v := New()
		v.Directory("dir", "../etc", false)
		if v.IsValid() {
			t.Fatal("expected traversal error")
		}
	})
}

func TestValidator_Distinct(t *testing.T) {
	v := New()
	v.Distinct(map[string]string{
		"raw":       "/data/raw",
		"processed": "/data/processed/",
		"audio":     "/data/processed",
	})
	errs := v.Errors()
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %v", errs)
	}
	if errs[0].Field != "processed" || !strings.Contains(errs[0].Message, "audio") {
		t.Errorf("unexpected error: %+v", errs[0])
	}
}

func TestValidator_Command(t *testing.T) {
	v := New()
	v.Command("ok", "ffmpeg")
	v.Command("abs", "/usr/local/bin/ffmpeg")
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.Command("empty", " ")
	v.Command("cmdline", "ffmpeg -y")
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, v.Err())
	}
}

func TestValidator_MinDuration(t *testing.T) {
	v := New()
	v.MinDuration("poll", 2*time.Second, 100*time.Millisecond)
	v.MinDuration("zero", 0, 0)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}
	v.MinDuration("fast", time.Millisecond, 100*time.Millisecond)
	if v.IsValid() {
		t.Fatal("expected error")
	}
}

func TestValidationError_Aggregates(t *testing.T) {
	v := New()
	if v.Err() != nil {
		t.Fatal("empty validator must return nil error")
	}
	v.Positive("queue", 0)
	v.OneOf("order", "random", []string{"sequential", "shuffle"})
	v.NonNegative("repeat", -1)
	v.FloatRange("rate", 1.5, 0, 1)
	v.NotEmpty("prefix", "")

	err := v.Err()
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors()) != 5 {
		t.Fatalf("expected 5 errors, got %d", len(ve.Errors()))
	}
	for _, field := range []string{"queue", "order", "repeat", "rate", "prefix"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestLogLevel(t *testing.T) {
	v := New()
	for _, l := range append(LogLevels, "INFO", " warn ") {
		v.LogLevel("log.level", l)
	}
	if !v.IsValid() {
		t.Fatalf("unexpected errors: %v", v.Err())
	}
	v.LogLevel("log.level", "trace")
	if v.IsValid() {
		t.Error("expected error for trace")
	}
}
