// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, path string) {
	t.Helper()
	db, err := Open(context.Background(), path, DefaultConfig(),
		"CREATE TABLE IF NOT EXISTS test (id INTEGER PRIMARY KEY, data TEXT);")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := db.Exec("INSERT INTO test (data) VALUES (hex(randomblob(50)));")
		require.NoError(t, err)
	}
	// Fold the WAL back so corruption below hits the main file.
	_, err = db.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func corrupt(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	junk := make([]byte, 100)
	_, _ = rand.Read(junk)
	_, err = f.WriteAt(junk, 4096)
	require.NoError(t, f.Close())
	require.NoError(t, err)
}

func TestOpen_CreatesDirAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.sqlite")
	db, err := Open(context.Background(), path, DefaultConfig(), "CREATE TABLE t (x INTEGER);")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	_, err = db.Exec("INSERT INTO t (x) VALUES (1)")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestVerifyIntegrity_DetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corruptible.sqlite")
	seed(t, path)

	issues, err := VerifyIntegrity(context.Background(), path, false)
	require.NoError(t, err)
	require.Nil(t, issues)

	corrupt(t, path)

	issues, err = VerifyIntegrity(context.Background(), path, true)
	if err == nil {
		assert.NotEmpty(t, issues)
	}
}

func TestCheckOrQuarantine(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.sqlite")
	assert.NoError(t, CheckOrQuarantine(context.Background(), missing))

	healthy := filepath.Join(dir, "ok.sqlite")
	seed(t, healthy)
	assert.NoError(t, CheckOrQuarantine(context.Background(), healthy))

	broken := filepath.Join(dir, "broken.sqlite")
	seed(t, broken)
	corrupt(t, broken)
	// Full check may still classify some corruption as an open error; both
	// paths must quarantine.
	err := CheckOrQuarantine(context.Background(), broken)
	if err != nil {
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.FileExists(t, broken+".corrupt")
		assert.NoFileExists(t, broken)
	}
}
