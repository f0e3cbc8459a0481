package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// ReleaseLedger implements [domain.ReleaseLedger] backed by SQLite. The
// single-pending invariant is enforced by a partial unique index on
// (target_name) WHERE outcome = 'pending'.
type ReleaseLedger struct {
	DB  *sql.DB
	Now func() time.Time
}

const releaseColumns = `id, intent_id, app, target_name, artifact_ref, replicas, outcome, detail, created_at, updated_at`

func (l *ReleaseLedger) Begin(ctx context.Context, rec domain.ReleaseRecord) (int64, error) {
	now := l.now().UTC().Format(time.RFC3339)
	res, err := l.DB.ExecContext(ctx,
		`INSERT INTO release_records (intent_id, app, target_name, artifact_ref, replicas, outcome, detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, '', ?, ?)`,
		string(rec.IntentID), rec.App, rec.TargetName, rec.ArtifactRef, rec.Replicas,
		string(domain.ReleasePending), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A release is already in flight for this target. An
			// at-least-once re-run of the same intent resumes the
			// existing record; anything else must wait.
			existing, getErr := l.pendingFor(ctx, rec.TargetName)
			if getErr == nil && existing.IntentID == rec.IntentID {
				return existing.ID, nil
			}
			return 0, fmt.Errorf("target %q: %w", rec.TargetName, domain.ErrReleaseInFlight)
		}
		return 0, fmt.Errorf("insert release record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("release record id: %w", err)
	}
	return id, nil
}

func (l *ReleaseLedger) Resolve(ctx context.Context, id int64, outcome domain.ReleaseOutcome, detail string) error {
	res, err := l.DB.ExecContext(ctx,
		`UPDATE release_records SET outcome = ?, detail = ?, updated_at = ?
		 WHERE id = ? AND outcome = ?`,
		string(outcome), detail, l.now().UTC().Format(time.RFC3339),
		id, string(domain.ReleasePending),
	)
	if err != nil {
		return fmt.Errorf("resolve release record: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("pending release %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (l *ReleaseLedger) MarkRolledBack(ctx context.Context, id int64) error {
	res, err := l.DB.ExecContext(ctx,
		`UPDATE release_records SET outcome = ?, updated_at = ?
		 WHERE id = ? AND outcome = ?`,
		string(domain.ReleaseRolledBack), l.now().UTC().Format(time.RFC3339),
		id, string(domain.ReleaseApplied),
	)
	if err != nil {
		return fmt.Errorf("mark release rolled back: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("applied release %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (l *ReleaseLedger) Get(ctx context.Context, id int64) (domain.ReleaseRecord, error) {
	row := l.DB.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM release_records WHERE id = ?`, id)
	return scanRelease(row, domain.ErrNotFound)
}

func (l *ReleaseLedger) ListByIntent(ctx context.Context, intentID domain.IntentID) ([]domain.ReleaseRecord, error) {
	return l.query(ctx,
		`SELECT `+releaseColumns+` FROM release_records WHERE intent_id = ? ORDER BY id`,
		string(intentID))
}

func (l *ReleaseLedger) LatestApplied(ctx context.Context, app, target string) (domain.ReleaseRecord, error) {
	row := l.DB.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM release_records
		 WHERE app = ? AND target_name = ? AND outcome = ?
		 ORDER BY id DESC LIMIT 1`,
		app, target, string(domain.ReleaseApplied))
	return scanRelease(row, domain.ErrNotFound)
}

func (l *ReleaseLedger) PriorApplied(ctx context.Context, app, target string) (domain.ReleaseRecord, error) {
	row := l.DB.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM release_records
		 WHERE app = ? AND target_name = ? AND outcome = ?
		 ORDER BY id DESC LIMIT 1 OFFSET 1`,
		app, target, string(domain.ReleaseApplied))
	return scanRelease(row, domain.ErrNoPriorRelease)
}

func (l *ReleaseLedger) History(ctx context.Context, target string, limit int) ([]domain.ReleaseRecord, error) {
	return l.query(ctx,
		`SELECT `+releaseColumns+` FROM release_records
		 WHERE target_name = ? ORDER BY id DESC LIMIT ?`,
		target, limit)
}

func (l *ReleaseLedger) Pending(ctx context.Context) ([]domain.ReleaseRecord, error) {
	return l.query(ctx,
		`SELECT `+releaseColumns+` FROM release_records WHERE outcome = ? ORDER BY id`,
		string(domain.ReleasePending))
}

func (l *ReleaseLedger) pendingFor(ctx context.Context, target string) (domain.ReleaseRecord, error) {
	row := l.DB.QueryRowContext(ctx,
		`SELECT `+releaseColumns+` FROM release_records
		 WHERE target_name = ? AND outcome = ?`,
		target, string(domain.ReleasePending))
	return scanRelease(row, domain.ErrNotFound)
}

func (l *ReleaseLedger) query(ctx context.Context, q string, args ...any) ([]domain.ReleaseRecord, error) {
	rows, err := l.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query release records: %w", err)
	}
	defer rows.Close()

	var records []domain.ReleaseRecord
	for rows.Next() {
		rec, err := scanRelease(rows, domain.ErrNotFound)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (l *ReleaseLedger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func scanRelease(s scanner, missing error) (domain.ReleaseRecord, error) {
	var rec domain.ReleaseRecord
	var intentID, outcome, createdAtStr, updatedAtStr string
	if err := s.Scan(&rec.ID, &intentID, &rec.App, &rec.TargetName, &rec.ArtifactRef,
		&rec.Replicas, &outcome, &rec.Detail, &createdAtStr, &updatedAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, fmt.Errorf("%w", missing)
		}
		return rec, fmt.Errorf("scan release record: %w", err)
	}
	rec.IntentID = domain.IntentID(intentID)
	rec.Outcome = domain.ReleaseOutcome(outcome)

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return rec, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return rec, fmt.Errorf("parse updated_at: %w", err)
	}
	rec.CreatedAt, rec.UpdatedAt = createdAt, updatedAt
	return rec, nil
}
