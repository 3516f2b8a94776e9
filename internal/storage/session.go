package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrConflict is returned by a staged write whose guard no longer matches.
var ErrConflict = errors.New("row changed concurrently")

// Op is a write staged on a Session, run inside the commit transaction.
type Op func(ctx context.Context, tx *sql.Tx) error

// Session is a unit of work over one database. Reads go straight to the
// pool; writes are staged and applied in a single transaction by Commit.
// A Session serves one request or one message delivery.
type Session struct {
	db  *sql.DB
	ops []Op
}

func NewSession(db *sql.DB) *Session {
	return &Session{db: db}
}

func (s *Session) DB() *sql.DB {
	return s.db
}

func (s *Session) Stage(op Op) {
	s.ops = append(s.ops, op)
}

func (s *Session) Pending() int {
	return len(s.ops)
}

// Commit applies every staged write atomically. The staged writes are
// dropped whether or not the commit succeeds.
func (s *Session) Commit(ctx context.Context) error {
	ops := s.ops
	s.ops = nil
	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		if err := op(ctx, tx); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ExpectRows turns a zero-row update into ErrConflict.
func ExpectRows(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}
	return nil
}
