// ABOUTME: SQLite implementation of the record store backend
// ABOUTME: One database/sql transaction per store transaction; lock contention maps to ErrConflict
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/agencyops/store"
	"github.com/mattn/go-sqlite3"
)

var _ store.Backend = (*RecordBackend)(nil)

// RecordBackend stores records in the SQLite records table.
type RecordBackend struct {
	db *sql.DB
}

// NewRecordBackend wraps an open database whose schema is initialized.
func NewRecordBackend(db *sql.DB) *RecordBackend {
	return &RecordBackend{db: db}
}

// Open opens the database at path and returns a backend over it.
func Open(path string) (*RecordBackend, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return NewRecordBackend(db), nil
}

func (b *RecordBackend) Close() error {
	return b.db.Close()
}

func (b *RecordBackend) Update(ctx context.Context, fn func(tx store.Tx) error) error {
	return b.run(ctx, fn)
}

// View runs fn in a transaction as well, so scans see one consistent snapshot.
func (b *RecordBackend) View(ctx context.Context, fn func(tx store.Tx) error) error {
	return b.run(ctx, func(tx store.Tx) error {
		return fn(&readOnlyTx{tx})
	})
}

func (b *RecordBackend) run(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return mapErr(err)
	}

	if err := tx.Commit(); err != nil {
		return mapErr(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

func mapErr(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTx) Get(key []byte) ([]byte, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT value FROM records WHERE key = ?`, string(key)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, nil
}

func (t *sqlTx) Set(key, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO records (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, string(key), value, time.Now().UTC())
	return err
}

func (t *sqlTx) Delete(key []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE key = ?`, string(key))
	return err
}

// Scan loads matching rows before calling fn so fn may issue its own queries.
func (t *sqlTx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	rows, err := t.tx.QueryContext(t.ctx,
		`SELECT key, value FROM records WHERE key >= ? AND key < ? ORDER BY key`,
		string(prefix), string(prefix)+"\xff")
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", prefix, err)
	}

	type row struct {
		key   string
		value []byte
	}
	var matched []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.key, &r.value); err != nil {
			rows.Close()
			return err
		}
		matched = append(matched, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, r := range matched {
		if err := fn([]byte(r.key), r.value); err != nil {
			return err
		}
	}
	return nil
}

type readOnlyTx struct {
	store.Tx
}

func (r *readOnlyTx) Set(key, value []byte) error {
	return fmt.Errorf("write to %s in read-only transaction", key)
}

func (r *readOnlyTx) Delete(key []byte) error {
	return fmt.Errorf("delete of %s in read-only transaction", key)
}
