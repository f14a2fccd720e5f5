package storage

import (
	"context"
	"fmt"

	"github.com/isntfunny/kitchenpace-sub002/internal/entities"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

type dbStorage struct {
	dbpool pgxPool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

const insertVariant = `
INSERT INTO thumbnail_variants (original_key, cache_key, width, height, quality, fit, size)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (cache_key) DO UPDATE
SET original_key = EXCLUDED.original_key,
    size = EXCLUDED.size,
    updated_timestamp = now()`

// RecordVariant upserts a rendered variant keyed by its cache key.
func (s *dbStorage) RecordVariant(ctx context.Context, v entities.Variant) error {
	_, err := s.dbpool.Exec(ctx, insertVariant,
		v.OriginalKey, v.CacheKey, v.Width, v.Height, v.Quality, string(v.Fit), v.Size,
	)
	if err != nil {
		return fmt.Errorf("insert variant %s: %w", v.CacheKey, err)
	}
	return nil
}

const selectVariants = `
SELECT id, original_key, cache_key, width, height, quality, fit, size, created_timestamp
FROM thumbnail_variants
WHERE original_key = $1
ORDER BY created_timestamp DESC, id DESC`

// ListVariants returns every variant rendered from originalKey, newest first.
func (s *dbStorage) ListVariants(ctx context.Context, originalKey string) ([]entities.Variant, error) {
	rows, err := s.dbpool.Query(ctx, selectVariants, originalKey)
	if err != nil {
		return nil, fmt.Errorf("query variants: %w", err)
	}
	defer rows.Close()

	variants := make([]entities.Variant, 0)
	for rows.Next() {
		var (
			v   entities.Variant
			fit string
		)
		if err := rows.Scan(&v.ID, &v.OriginalKey, &v.CacheKey, &v.Width, &v.Height, &v.Quality, &fit, &v.Size, &v.CreatedTimestamp); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		v.Fit = entities.Fit(fit)
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate variants: %w", err)
	}

	return variants, nil
}
