// Package artifact fetches the serialized classifier and label codec, either
// from disk or from a Postgres table.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("artifact not found")

// Source returns the raw bytes of a named artifact.
type Source interface {
	Open(ctx context.Context, name string) ([]byte, error)
}

// FileSource resolves names as paths; relative names are joined to Dir.
type FileSource struct {
	Dir string
}

func (s FileSource) Open(_ context.Context, name string) ([]byte, error) {
	path := name
	if !filepath.IsAbs(path) && s.Dir != "" {
		path = filepath.Join(s.Dir, path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// PostgresSource reads artifacts from
//
//	CREATE TABLE model_artifacts (name text PRIMARY KEY, payload bytea NOT NULL)
//
// keyed by the same names a FileSource would use.
type PostgresSource struct {
	Pool *pgxpool.Pool
}

const selectArtifact = `SELECT payload FROM model_artifacts WHERE name = $1`

func (s PostgresSource) Open(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := s.Pool.QueryRow(ctx, selectArtifact, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("query artifact %s: %w", name, err)
	}
	return payload, nil
}

// Connect opens and pings a pool for url.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}
