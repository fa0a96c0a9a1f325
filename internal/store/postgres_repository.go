package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// db is satisfied by *pgxpool.Pool and pgx.Tx, so tests can run inside a
// rolled-back transaction.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository keeps each collection in its own JSONB table.
type PostgresRepository struct {
	db db
}

func NewPostgresRepository(conn db) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Put upserts the document.
func (r *PostgresRepository) Put(ctx context.Context, doc Document) error {
	c, key, b, err := encode(doc)
	if err != nil {
		return err
	}
	// Table names come from the closed Collection set, never from input.
	q := fmt.Sprintf(`
		INSERT INTO %s (key, doc, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`, c.Name())
	if _, err := r.db.Exec(ctx, q, key, b); err != nil {
		return fmt.Errorf("put %s/%s: %w", c, key, err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, c Collection, key string) (json.RawMessage, error) {
	if !c.valid() {
		return nil, fmt.Errorf("unknown collection %d", int(c))
	}
	var b []byte
	q := fmt.Sprintf(`SELECT doc FROM %s WHERE key = $1`, c.Name())
	if err := r.db.QueryRow(ctx, q, key).Scan(&b); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", c, key, err)
	}
	return b, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, c Collection, key string) error {
	if !c.valid() {
		return fmt.Errorf("unknown collection %d", int(c))
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, c.Name())
	if _, err := r.db.Exec(ctx, q, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", c, key, err)
	}
	return nil
}

func (r *PostgresRepository) Count(ctx context.Context, c Collection) (int, error) {
	if !c.valid() {
		return 0, fmt.Errorf("unknown collection %d", int(c))
	}
	var n int
	q := fmt.Sprintf(`SELECT count(*) FROM %s`, c.Name())
	if err := r.db.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", c, err)
	}
	return n, nil
}

var _ Repository = (*PostgresRepository)(nil)
