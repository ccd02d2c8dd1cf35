// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrCorrupt is returned by CheckOrQuarantine when the integrity check fails.
var ErrCorrupt = errors.New("sqlite database corrupt")

// VerifyIntegrity runs PRAGMA quick_check (or integrity_check when full is set)
// on a read-only connection. It returns the problem rows, or nil when healthy.
func VerifyIntegrity(ctx context.Context, path string, full bool) ([]string, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open for verify: %w", err)
	}
	defer func() { _ = db.Close() }()

	pragma := "PRAGMA quick_check;"
	if full {
		pragma = "PRAGMA integrity_check;"
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("sqlite: integrity pragma: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, fmt.Errorf("sqlite: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: integrity rows: %w", err)
	}

	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"integrity check returned no rows"}, nil
	}
	return results, nil
}

// CheckOrQuarantine verifies an existing database file. A corrupt file is moved
// aside to <path>.corrupt so a fresh one can be created; the returned error
// wraps ErrCorrupt. A missing file is fine.
func CheckOrQuarantine(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	issues, err := VerifyIntegrity(ctx, path, false)
	if err != nil {
		issues = []string{err.Error()}
	}
	if issues == nil {
		return nil
	}
	if rerr := os.Rename(path, path+".corrupt"); rerr != nil {
		return fmt.Errorf("%w: %s (quarantine failed: %v)", ErrCorrupt, strings.Join(issues, "; "), rerr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(issues, "; "))
}
