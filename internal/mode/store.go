// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

var (
	ErrNoRecord      = errors.New("no mode record")
	ErrCorruptRecord = errors.New("corrupt mode record")
	ErrNotDurable    = errors.New("mode record read-back mismatch")
)

// Store persists the current mode.
type Store interface {
	Read(ctx context.Context) (Mode, error)
	// WriteDurable writes m and confirms it by reading it back.
	WriteDurable(ctx context.Context, m Mode) error
}

// FileStore keeps the mode as a single token in a small text file.
type FileStore struct {
	Path string
}

func (s FileStore) Read(_ context.Context) (Mode, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoRecord
	}
	if err != nil {
		return "", fmt.Errorf("read mode file: %w", err)
	}
	m, err := Parse(string(bytes.TrimSpace(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrCorruptRecord, bytes.TrimSpace(data))
	}
	return m, nil
}

func (s FileStore) WriteDurable(ctx context.Context, m Mode) error {
	if _, err := Parse(string(m)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("create mode dir: %w", err)
	}
	// renameio fsyncs the temp file before the rename.
	if err := renameio.WriteFile(s.Path, []byte(string(m)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write mode file: %w", err)
	}
	got, err := s.Read(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotDurable, err)
	}
	if got != m {
		return fmt.Errorf("%w: wrote %s, read %s", ErrNotDurable, m, got)
	}
	return nil
}
