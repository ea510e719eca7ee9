// Package statedb persists the remote-freshness checks the cached
// repository stager (package stager) performs, surviving process
// restarts. It is a supplemental feature beyond the original Python
// implementation's purely in-memory TTL cache: a sqlite3-backed table
// holding, per cache key, one row of "last time we verified this cache
// key against its remote, and what hash we saw" (overwritten on each
// new check, deleted by Prune), schema-migrated with
// golang-migrate the same way the rest of the example pack's API
// servers manage their own sqlite3 state.
package statedb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/clog"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a sqlite3-backed state database tracking staged-artifact
// freshness checks.
type DB struct {
	conn   *sql.DB
	logger clog.Logger
}

// Open opens (creating if absent) the sqlite3 database at path and
// applies any pending schema migrations.
func Open(path string, logger clog.Logger) (*DB, error) {
	if logger == nil {
		logger = clog.Default
	}
	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", path))
	if err != nil {
		return nil, cstarerrors.Configuration("statedb.Open", err.Error())
	}

	m, err := newMigrator(logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := m.apply(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, logger: logger}, nil
}

// Close closes the underlying database handle.
func (d *DB) Close() error { return d.conn.Close() }

// RecordCheck upserts the most recent verification of cacheKey: the
// kind of artifact, its source location, the hash observed, and the
// time of the check.
func (d *DB) RecordCheck(ctx context.Context, cacheKey, kind, location, verifiedHash string, checkedAt time.Time) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO staged_artifact_checks (cache_key, kind, location, verified_hash, checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			kind = excluded.kind,
			location = excluded.location,
			verified_hash = excluded.verified_hash,
			checked_at = excluded.checked_at
	`, cacheKey, kind, location, verifiedHash, checkedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return cstarerrors.Subprocess("statedb.RecordCheck", "INSERT staged_artifact_checks", err.Error(), err)
	}
	return nil
}

// LastCheck returns the most recently recorded verification for
// cacheKey, if any.
func (d *DB) LastCheck(ctx context.Context, cacheKey string) (verifiedHash string, checkedAt time.Time, found bool, err error) {
	row := d.conn.QueryRowContext(ctx, `
		SELECT verified_hash, checked_at FROM staged_artifact_checks WHERE cache_key = ?
	`, cacheKey)

	var checkedAtStr string
	if scanErr := row.Scan(&verifiedHash, &checkedAtStr); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, cstarerrors.Subprocess("statedb.LastCheck", "SELECT staged_artifact_checks", scanErr.Error(), scanErr)
	}

	parsed, parseErr := time.Parse(time.RFC3339, checkedAtStr)
	if parseErr != nil {
		return "", time.Time{}, false, cstarerrors.Configuration("statedb.LastCheck", parseErr.Error())
	}
	return verifiedHash, parsed, true, nil
}

// Prune deletes every recorded check older than olderThan.
func (d *DB) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := d.conn.ExecContext(ctx, `DELETE FROM staged_artifact_checks WHERE checked_at < ?`, olderThan.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, cstarerrors.Subprocess("statedb.Prune", "DELETE staged_artifact_checks", err.Error(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, cstarerrors.Subprocess("statedb.Prune", "RowsAffected", err.Error(), err)
	}
	return n, nil
}
