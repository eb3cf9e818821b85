// internal/repository/postgres/db.go
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"billing-service/internal/domain/account"
	"billing-service/internal/domain/event"
	"billing-service/internal/domain/orphan"
	"billing-service/internal/domain/payment"
	"billing-service/internal/domain/subscription"
	"billing-service/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	pool *pgxpool.Pool
	q    querier
}

var _ repository.Store = (*DB)(nil)

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool, q: pool}
}

func (db *DB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Migrate creates the billing tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// InTx runs fn inside one database transaction. Nested calls reuse the outer one.
func (db *DB) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if _, nested := db.q.(pgx.Tx); nested {
		return fn(db)
	}

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&DB{pool: db.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) Accounts() account.Repository           { return &AccountRepository{q: db.q} }
func (db *DB) Subscriptions() subscription.Repository { return &SubscriptionRepository{q: db.q} }
func (db *DB) Payments() payment.Repository           { return &PaymentRepository{q: db.q} }
func (db *DB) Orphans() orphan.Repository             { return &OrphanRepository{q: db.q} }
func (db *DB) Events() event.Repository               { return &EventRepository{q: db.q} }

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func marshalMetadata(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalMetadata(raw []byte) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}
