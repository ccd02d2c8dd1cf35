// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/striploop/internal/fsutil"
	"github.com/ManuGH/striploop/internal/playlist"
)

// SanitizeFilename reduces name to a safe ASCII base name: path separators and
// whitespace become underscores, other characters outside [A-Za-z0-9._-] are
// dropped, and leading dots or underscores are trimmed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || unicode.IsSpace(r):
			b.WriteByte('_')
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_'):
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" || out == "." || out == ".." {
		return ""
	}
	return out
}

var depositMu sync.Mutex

// Deposit writes r into dir under the sanitized filename, appending _1, _2, ...
// to the stem on collision. The file appears atomically. maxBytes <= 0 means
// unlimited.
func Deposit(dir, filename string, r io.Reader, maxBytes int64) (string, error) {
	name := SanitizeFilename(filename)
	if name == "" {
		return "", ErrInvalidName
	}
	if !playlist.IsVideo(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}

	depositMu.Lock()
	defer depositMu.Unlock()

	final, err := uniquePath(dir, name)
	if err != nil {
		return "", err
	}
	pending, err := renameio.NewPendingFile(final, renameio.WithTempDir(dir), renameio.WithPermissions(0o644))
	if err != nil {
		return "", fmt.Errorf("deposit: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(pending, src)
	if err != nil {
		return "", fmt.Errorf("deposit: write: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		return "", ErrTooLarge
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return "", fmt.Errorf("deposit: promote: %w", err)
	}
	return final, nil
}

func uniquePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("deposit: %w", err)
		}
		candidate = filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
	}
}

// ListProcessed returns the playable files of the processed store in name order.
func ListProcessed(dir string) ([]playlist.MediaItem, error) {
	pl, err := playlist.Scan(dir, playlist.KindVideo, playlist.OrderSequential)
	if errors.Is(err, playlist.ErrEmptyDirectory) {
		return []playlist.MediaItem{}, nil
	}
	if err != nil {
		return nil, err
	}
	return pl.Items, nil
}

// DeleteProcessed removes one file from the processed store. Names with path
// components and dotfiles (in-flight promote temp files) are refused.
func DeleteProcessed(dir, name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	if !playlist.IsVideo(name) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	path, err := fsutil.ConfineRelPath(dir, name)
	if err != nil {
		if errors.Is(err, fsutil.ErrEscapesRoot) {
			return fmt.Errorf("%w: %v", ErrInvalidName, err)
		}
		return err
	}
	if err := fsutil.IsRegularFile(path); err != nil {
		return err
	}
	return os.Remove(path)
}
