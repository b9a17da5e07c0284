package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx
type DBTX interface {
	sqlx.ExtContext
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStoreFromDB wraps an existing connection pool
func NewStoreFromDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate creates the schema if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Repositories returns repositories bound to the connection pool (no transaction)
func (s *Store) Repositories() Repositories {
	return newRepos(s.db)
}

// Begin opens a transaction scope
func (s *Store) Begin(ctx context.Context) (Scope, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, classify(err, "failed to begin transaction")
	}
	return &txScope{tx: tx, repos: newRepos(tx)}, nil
}

// SupportsTransactions tests the deployment with an empty transaction
func (s *Store) SupportsTransactions(ctx context.Context) (bool, error) {
	scope, err := s.Begin(ctx)
	if err != nil {
		if isTransactionsUnsupported(err) {
			return false, nil
		}
		return false, err
	}
	defer scope.Rollback()

	var one int
	if err := sqlx.GetContext(ctx, scope.(*txScope).tx, &one, "SELECT 1"); err != nil {
		err = classify(err, "transaction check failed")
		if isTransactionsUnsupported(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type txScope struct {
	tx    *sqlx.Tx
	repos Repositories
}

func (s *txScope) Repositories() Repositories {
	return s.repos
}

func (s *txScope) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return classify(err, "failed to commit transaction")
	}
	return nil
}

// Rollback is a no-op after a successful commit
func (s *txScope) Rollback() error {
	if err := s.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

type repos struct {
	q DBTX
}

func newRepos(q DBTX) *repos {
	return &repos{q: q}
}

func (r *repos) Ledger() Ledger                          { return &ledger{q: r.q} }
func (r *repos) Products() ProductRepository             { return &productRepo{q: r.q} }
func (r *repos) Orders() OrderRepository                 { return &orderRepo{q: r.q} }
func (r *repos) PurchaseOrders() PurchaseOrderRepository { return &purchaseOrderRepo{q: r.q} }
func (r *repos) Movements() MovementRepository           { return &movementRepo{q: r.q} }
func (r *repos) Sequences() SequenceRepository           { return &sequenceRepo{q: r.q} }
func (r *repos) Suppliers() SupplierRepository           { return &supplierRepo{q: r.q} }
