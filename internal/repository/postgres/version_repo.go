package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/benchboard/internal/errs"
	"github.com/and161185/benchboard/internal/model"
)

// VersionRepo implements VersionRepository using PostgreSQL.
type VersionRepo struct{ db *DB }

// NewVersionRepo constructs a benchmark version repository.
func NewVersionRepo(db *DB) *VersionRepo { return &VersionRepo{db: db} }

// EnsureExists creates the version as not current and not hidden unless it is already known.
func (r *VersionRepo) EnsureExists(ctx context.Context, id string) error {
	const q = `INSERT INTO benchmark_versions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, id)
	return storageErr(err)
}

// Current returns IDs of versions flagged current.
func (r *VersionRepo) Current(ctx context.Context) ([]string, error) {
	const q = `SELECT id FROM benchmark_versions WHERE current ORDER BY created_at DESC, id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan version id: %w", err)
		}
		out = append(out, id)
	}
	return out, storageErr(rows.Err())
}

// List returns versions newest first. Hidden versions are skipped unless includeHidden.
func (r *VersionRepo) List(ctx context.Context, includeHidden bool) ([]model.BenchmarkVersion, error) {
	const q = `
SELECT id, created_at, current, hidden FROM benchmark_versions
WHERE $1 OR NOT hidden
ORDER BY created_at DESC, id`
	rows, err := r.db.Pool.Query(ctx, q, includeHidden)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var out []model.BenchmarkVersion
	for rows.Next() {
		var v model.BenchmarkVersion
		if err := rows.Scan(&v.ID, &v.CreatedAt, &v.Current, &v.Hidden); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, v)
	}
	return out, storageErr(rows.Err())
}

// SetCurrent moves the current flag to id in one transaction.
// An unknown id rolls back so the previous current version survives.
func (r *VersionRepo) SetCurrent(ctx context.Context, id string) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE benchmark_versions SET current=false WHERE current`); err != nil {
			return storageErr(err)
		}
		tag, err := tx.Exec(ctx, `UPDATE benchmark_versions SET current=true WHERE id=$1`, id)
		if err != nil {
			return storageErr(err)
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// SetHidden updates the hidden flag.
func (r *VersionRepo) SetHidden(ctx context.Context, id string, hidden bool) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE benchmark_versions SET hidden=$2 WHERE id=$1`, id, hidden)
	if err != nil {
		return storageErr(err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
