package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// TargetRepo implements [domain.TargetRepository] backed by SQLite.
type TargetRepo struct {
	DB *sql.DB
}

func (r *TargetRepo) Create(ctx context.Context, t domain.Target) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO targets (name, kind, endpoint, app_id, token_env, last_applied)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Name, string(t.Kind), t.Endpoint, t.AppID, t.TokenEnv, t.LastApplied,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("target %q: %w", t.Name, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (r *TargetRepo) Get(ctx context.Context, name string) (domain.Target, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT name, kind, endpoint, app_id, token_env, last_applied
		 FROM targets WHERE name = ?`,
		name,
	)
	return scanTarget(row)
}

func (r *TargetRepo) List(ctx context.Context) ([]domain.Target, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT name, kind, endpoint, app_id, token_env, last_applied
		 FROM targets ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var targets []domain.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func (r *TargetRepo) SetLastApplied(ctx context.Context, name, artifactRef string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE targets SET last_applied = ? WHERE name = ?`,
		artifactRef, name,
	)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("target %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

func (r *TargetRepo) Delete(ctx context.Context, name string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM targets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("target %q: %w", name, domain.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTarget(s scanner) (domain.Target, error) {
	var t domain.Target
	var kind string
	if err := s.Scan(&t.Name, &kind, &t.Endpoint, &t.AppID, &t.TokenEnv, &t.LastApplied); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return t, fmt.Errorf("scan target: %w", err)
	}
	t.Kind = domain.AdapterKind(kind)
	return t, nil
}
