package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Executor is the query-execution interface consumed by the analytics layer
// and the loaders. The caller is the exclusive producer of query strings;
// values travel only through args.
type Executor interface {
	// ExecuteMany runs a query and returns all rows as field->value maps.
	ExecuteMany(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	// ExecuteOne runs a query and returns the first row, or nil when the
	// query matches nothing. Absence is not an error.
	ExecuteOne(ctx context.Context, query string, args ...any) (map[string]any, error)
	// ExecuteScalar runs a query returning a single integer value.
	ExecuteScalar(ctx context.Context, query string, args ...any) (int64, error)
}

// Pool wraps a pgx connection pool behind the Executor interface
type Pool struct {
	pool *pgxpool.Pool
}

var _ Executor = (*Pool)(nil)

// New creates a warehouse connection pool and verifies connectivity
func New(connString string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// ExecuteMany runs a query and collects every row into a field->value map
func (p *Pool) ExecuteMany(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	results, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	return results, nil
}

// ExecuteOne runs a query and returns the first row, or nil when absent
func (p *Pool) ExecuteOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}

	result, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %w", err)
	}
	return result, nil
}

// ExecuteScalar runs a query returning a single integer
func (p *Pool) ExecuteScalar(ctx context.Context, query string, args ...any) (int64, error) {
	var value int64
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		return 0, fmt.Errorf("query execution failed: %w", err)
	}
	return value, nil
}

// Batch sends a queued batch and drains its results
func (p *Pool) Batch(ctx context.Context, batch *pgx.Batch) error {
	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch statement %d failed: %w", i, err)
		}
	}
	return nil
}

// RunScript executes a transformation SQL script verbatim. The script text
// is operator-supplied configuration, never request input.
func (p *Pool) RunScript(ctx context.Context, script string) error {
	if _, err := p.pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("transform script failed: %w", err)
	}
	return nil
}

// Ping verifies warehouse connectivity
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool
func (p *Pool) Close() {
	p.pool.Close()
}
