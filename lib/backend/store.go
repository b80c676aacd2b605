/*
Copyright 2024 PyNinja Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package backend is the single-file embedded store: three logical tables
// (auth_errors, mfa_token, run_token) backed by one sqlite database. Each
// Store holds exactly one connection; every mutating call runs inside
// its own transaction that ends before the call returns.
package backend

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gravitational/trace"
	_ "github.com/mattn/go-sqlite3"
)

// Table names, exported so the sweeper and tests can name them without
// repeating string literals.
const (
	TableAuthErrors = "auth_errors"
	TableMFAToken   = "mfa_token"
	TableRunToken   = "run_token"
)

// Store wraps the single shared *sql.DB connection. It is safe for
// concurrent use from multiple request-handling goroutines; sql.DB pools
// its own connections, but every write below still runs inside one explicit
// transaction per call so the singleton-row invariant on mfa_token and
// run_token never observes a partial state.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and migrates the database file at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_journal=WAL&_timeout=5000", path))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	// One connection per Store: the auth ladder and MFA issuance serialize
	// through it. The Sweeper opens a Store of its own on the same file.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, trace.Wrap(err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + TableAuthErrors + ` (
			host TEXT PRIMARY KEY,
			block_until INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + TableMFAToken + ` (
			token TEXT NOT NULL,
			expiry INTEGER NOT NULL,
			requester TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + TableRunToken + ` (
			token TEXT NOT NULL,
			expiry INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return trace.Wrap(err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return trace.Wrap(s.db.Close())
}

// GetBlockUntil returns the epoch second a host is blocked until, or zero
// if no row exists for it.
func (s *Store) GetBlockUntil(ctx context.Context, host string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `SELECT block_until FROM `+TableAuthErrors+` WHERE host = ?`, host)
	var until int64
	if err := row.Scan(&until); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, trace.Wrap(err)
	}
	return until, nil
}

// PutBlock replaces any existing block row for host with a fresh block_until,
// matching the spec's "delete then insert, never mutated in place" rule.
func (s *Store) PutBlock(ctx context.Context, host string, blockUntil int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+TableAuthErrors+` WHERE host = ?`, host); err != nil {
		return trace.Wrap(err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO `+TableAuthErrors+` (host, block_until) VALUES (?, ?)`, host, blockUntil); err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(tx.Commit())
}

// RemoveBlock deletes any block row for host (explicit unblock).
func (s *Store) RemoveBlock(ctx context.Context, host string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+TableAuthErrors+` WHERE host = ?`, host)
	return trace.Wrap(err)
}

// Token is a singleton row shape shared by mfa_token and run_token.
type Token struct {
	Token     string
	Expiry    int64
	Requester string
}

// GetToken returns the single active row of table, or nil if absent. Table
// must be TableMFAToken or TableRunToken.
func (s *Store) GetToken(ctx context.Context, table string) (*Token, error) {
	var (
		row *sql.Row
		tok Token
	)
	switch table {
	case TableMFAToken:
		row = s.db.QueryRowContext(ctx, `SELECT token, expiry, requester FROM `+TableMFAToken+` LIMIT 1`)
		if err := row.Scan(&tok.Token, &tok.Expiry, &tok.Requester); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, trace.Wrap(err)
		}
	case TableRunToken:
		row = s.db.QueryRowContext(ctx, `SELECT token, expiry FROM `+TableRunToken+` LIMIT 1`)
		if err := row.Scan(&tok.Token, &tok.Expiry); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, trace.Wrap(err)
		}
	default:
		return nil, trace.BadParameter("unknown singleton table %q", table)
	}
	return &tok, nil
}

// UpdateToken atomically replaces the singleton row in table with tok,
// running a DELETE then INSERT inside one transaction.
func (s *Store) UpdateToken(ctx context.Context, table string, tok Token) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return trace.Wrap(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return trace.Wrap(err)
	}
	switch table {
	case TableMFAToken:
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+TableMFAToken+` (token, expiry, requester) VALUES (?, ?, ?)`, tok.Token, tok.Expiry, tok.Requester); err != nil {
			return trace.Wrap(err)
		}
	case TableRunToken:
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+TableRunToken+` (token, expiry) VALUES (?, ?)`, tok.Token, tok.Expiry); err != nil {
			return trace.Wrap(err)
		}
	default:
		return trace.BadParameter("unknown singleton table %q", table)
	}
	return trace.Wrap(tx.Commit())
}

// DeleteToken clears the singleton row in table, reporting whether a row
// was actually present.
func (s *Store) DeleteToken(ctx context.Context, table string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table)
	if err != nil {
		return false, trace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, trace.Wrap(err)
	}
	return n > 0, nil
}
