// Package store is the Post/Comment Store Adapter (spec §4.G): the sole
// writer of posts, comments, scrapers, accounts, errors, and usage rows.
// It is hand-written raw SQL over database/sql + lib/pq rather than
// sqlc-generated code, because the sqlc codegen step (and its generated
// package) is not something this process can run; the DBTX-style split
// between a thin executor interface and a Queries wrapper is kept from the
// teacher's internal/db, just filled in by hand instead of by sqlc.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/onnwee/reddit-fleet/internal/metrics"
)

// DBTX is satisfied by *sql.DB and *sql.Tx, mirroring the teacher's sqlc
// output so callers can pass either a pooled connection or a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store wraps a DBTX with the queries the fleet needs. It is safe for
// concurrent use by many worker goroutines/processes because every
// operation is a single statement or a single transaction.
type Store struct {
	db DBTX
}

// New wraps an existing database handle.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// pinger is satisfied by *sql.DB; used for the health check's store
// reachability probe.
type pinger interface {
	PingContext(ctx context.Context) error
}

// Ping reports whether the underlying database connection is reachable
// (spec's SUPPLEMENTED FEATURES #2 deep health check).
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.db.(pinger)
	if !ok {
		_, err := s.db.QueryContext(ctx, `SELECT 1`)
		return err
	}
	return p.PingContext(ctx)
}

// Open connects to Postgres and applies the schema. It is the fleet's
// equivalent of the teacher's db.Connect + migration bootstrap, collapsed
// into one step since there is no migration tool here.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, Schema); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func observe(operation string, start time.Time, err error) {
	metrics.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreOperationErrors.WithLabelValues(operation).Inc()
	}
}

// txBeginner is satisfied by *sql.DB. Operations that must read-then-write
// atomically (UpdateSubreddits, RecordCycle) require the Store be
// constructed over a *sql.DB rather than an existing *sql.Tx.
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func beginTx(ctx context.Context, db DBTX) (*sql.Tx, error) {
	b, ok := db.(txBeginner)
	if !ok {
		return nil, errNoTxSupport
	}
	return b.BeginTx(ctx, nil)
}

var errNoTxSupport = errTxSupport("store: underlying DBTX does not support transactions")

type errTxSupport string

func (e errTxSupport) Error() string { return string(e) }

func rollbackOnErr(tx *sql.Tx, err *error) {
	if *err != nil {
		tx.Rollback()
	}
}
