// Package userstore is the credential store: user records keyed by
// lowercased nickname, persisted in a SQLite database via database/sql and
// modernc.org/sqlite (pure Go, no cgo). The schema matches the relational
// description in the spec: columns username, username_lower, password_hash,
// is_admin, with a unique index on username_lower.
//
// Store exposes exactly the operations the auth state machine needs:
// Register and Lookup. Records are never mutated after creation except the
// admin flag, which is expected to be set out of band (directly in the
// database) rather than through this package.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrUsernameTaken is returned by Register when username_lower already
// exists.
var ErrUsernameTaken = errors.New("userstore: username taken")

// ErrNotFound is returned by Lookup when no record matches.
var ErrNotFound = errors.New("userstore: not found")

// User is one credential record.
type User struct {
	Username     string // raw, display form
	UsernameLower string
	PasswordHash string
	IsAdmin      bool
}

// Store is a SQLite-backed credential store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the users table and its unique index exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("userstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY races

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("userstore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username       TEXT NOT NULL,
	username_lower TEXT NOT NULL,
	password_hash  TEXT NOT NULL,
	is_admin       INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users(username_lower);
`

// Register inserts a new user record. Returns ErrUsernameTaken if
// lower(username) already exists.
func (s *Store) Register(ctx context.Context, username, passwordHash string) error {
	lower := strings.ToLower(username)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, username_lower, password_hash, is_admin) VALUES (?, ?, ?, 0)`,
		username, lower, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("userstore: register: %w", err)
	}
	return nil
}

// Lookup fetches the record for lower(username). Returns ErrNotFound on
// miss.
func (s *Store) Lookup(ctx context.Context, username string) (User, error) {
	lower := strings.ToLower(username)
	var u User
	var isAdmin int
	row := s.db.QueryRowContext(ctx,
		`SELECT username, username_lower, password_hash, is_admin FROM users WHERE username_lower = ?`,
		lower,
	)
	if err := row.Scan(&u.Username, &u.UsernameLower, &u.PasswordHash, &isAdmin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("userstore: lookup: %w", err)
	}
	u.IsAdmin = isAdmin != 0
	return u, nil
}

// Close disconnects the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite wraps the underlying SQLite error message; it does
	// not expose a typed sentinel, so match on the message it's documented
	// to produce for a UNIQUE constraint failure.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
