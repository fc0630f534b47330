package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLStore implements Store on top of MySQL/InnoDB.  Capacity decisions
// rely on SELECT ... FOR UPDATE row locks taken inside WithTx.  All
// timestamps are stored in UTC (the DSN sets loc=UTC).
type MySQLStore struct {
	reader
	db *sqlx.DB
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)

// NewMySQLStore returns a Store bound to the given database handle.
func NewMySQLStore(db *sqlx.DB) *MySQLStore {
	return &MySQLStore{reader: reader{q: db}, db: db}
}

// WithTx begins a transaction, runs fn and commits.  Any error from fn, or
// a panic, rolls the transaction back.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&mysqlTx{reader: reader{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *MySQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *MySQLStore) Close() error { return s.db.Close() }

// mysqlTx is the Tx handed to WithTx callbacks.
type mysqlTx struct {
	reader
	tx *sqlx.Tx
}

// reader runs the non-locking queries against either the pool or a
// transaction.
type reader struct {
	q sqlx.ExtContext
}

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		return ErrConflict
	}
	return err
}

// affected reports whether an exec touched at least one row.
func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// mustAffect converts a zero-row update into ErrNotFound.
func mustAffect(res sql.Result, err error) error {
	ok, err := affected(res, err)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
