package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool used by the Postgres backend.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres stores nodes in the kv_nodes table (see pkg/database/migrations).
type Postgres struct {
	db DB
}

// NewPostgres creates a Postgres-backed node store.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

// Get returns the value stored at path.
func (p *Postgres) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	const q = `SELECT value FROM kv_nodes WHERE path = $1`
	var raw []byte
	if err := p.db.QueryRow(ctx, q, path).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return json.RawMessage(raw), nil
}

// Children returns the direct children of path in insertion order.
func (p *Postgres) Children(ctx context.Context, path string) ([]Node, error) {
	path, err := Clean(path)
	if err != nil {
		return nil, err
	}
	const q = `SELECT path, value FROM kv_nodes WHERE parent = $1 ORDER BY seq`
	rows, err := p.db.Query(ctx, q, path)
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", path, err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var child string
		var raw []byte
		if err := rows.Scan(&child, &raw); err != nil {
			return nil, err
		}
		_, key := split(child)
		nodes = append(nodes, Node{Key: key, Value: json.RawMessage(raw)})
	}
	return nodes, rows.Err()
}

// Set replaces the value at path.
func (p *Postgres) Set(ctx context.Context, path string, value any) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	raw, err := encode(value)
	if err != nil {
		return err
	}
	parent, _ := split(path)
	const q = `INSERT INTO kv_nodes (path, parent, value) VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := p.db.Exec(ctx, q, path, parent, string(raw)); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// Update merges the top-level keys of partial into the object at path,
// creating it when missing.
func (p *Postgres) Update(ctx context.Context, path string, partial map[string]any) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	raw, err := encodeObject(partial)
	if err != nil {
		return err
	}
	parent, _ := split(path)
	const q = `INSERT INTO kv_nodes (path, parent, value) VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET value = kv_nodes.value || EXCLUDED.value, updated_at = NOW()`
	if _, err := p.db.Exec(ctx, q, path, parent, string(raw)); err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	return nil
}

// Remove deletes path and everything below it.
func (p *Postgres) Remove(ctx context.Context, path string) error {
	path, err := Clean(path)
	if err != nil {
		return err
	}
	const q = `DELETE FROM kv_nodes WHERE path = $1 OR starts_with(path, $2)`
	if _, err := p.db.Exec(ctx, q, path, path+"/"); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Push stores value under a generated child id of path and returns the id.
func (p *Postgres) Push(ctx context.Context, path string, value any) (string, error) {
	path, err := Clean(path)
	if err != nil {
		return "", err
	}
	id := newPushID()
	if err := p.Set(ctx, Join(path, id), value); err != nil {
		return "", err
	}
	return id, nil
}
