package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

// IntentRepo implements [domain.IntentRepository] backed by SQLite.
type IntentRepo struct {
	DB *sql.DB
}

func (r *IntentRepo) Create(ctx context.Context, in domain.DeploymentIntent) error {
	targets, err := json.Marshal(in.Targets)
	if err != nil {
		return fmt.Errorf("marshal targets: %w", err)
	}
	var targetRefs, targetReplicas, rollbackOf []byte
	if in.TargetRefs != nil {
		targetRefs, err = json.Marshal(in.TargetRefs)
		if err != nil {
			return fmt.Errorf("marshal target refs: %w", err)
		}
	}
	if in.TargetReplicas != nil {
		targetReplicas, err = json.Marshal(in.TargetReplicas)
		if err != nil {
			return fmt.Errorf("marshal target replicas: %w", err)
		}
	}
	if in.RollbackOf != nil {
		rollbackOf, err = json.Marshal(in.RollbackOf)
		if err != nil {
			return fmt.Errorf("marshal rollback map: %w", err)
		}
	}

	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO intents (id, app, artifact_ref, replicas, targets, target_refs, target_replicas, rollback_of, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(in.ID), in.App, in.ArtifactRef, in.Replicas,
		string(targets), nullString(targetRefs), nullString(targetReplicas), nullString(rollbackOf),
		string(in.State), in.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("intent %q: %w", in.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert intent: %w", err)
	}
	return nil
}

func (r *IntentRepo) Get(ctx context.Context, id domain.IntentID) (domain.DeploymentIntent, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, app, artifact_ref, replicas, targets, target_refs, target_replicas, rollback_of, state, created_at
		 FROM intents WHERE id = ?`,
		string(id),
	)
	return scanIntent(row)
}

func (r *IntentRepo) List(ctx context.Context) ([]domain.DeploymentIntent, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, app, artifact_ref, replicas, targets, target_refs, target_replicas, rollback_of, state, created_at
		 FROM intents ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list intents: %w", err)
	}
	defer rows.Close()

	var intents []domain.DeploymentIntent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

func (r *IntentRepo) SetState(ctx context.Context, id domain.IntentID, state domain.IntentState) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE intents SET state = ? WHERE id = ?`,
		string(state), string(id),
	)
	if err != nil {
		return fmt.Errorf("update intent state: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("intent %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

func scanIntent(s scanner) (domain.DeploymentIntent, error) {
	var in domain.DeploymentIntent
	var id, targetsJSON, stateStr, createdAtStr string
	var targetRefsJSON, targetReplicasJSON, rollbackOfJSON sql.NullString
	if err := s.Scan(&id, &in.App, &in.ArtifactRef, &in.Replicas,
		&targetsJSON, &targetRefsJSON, &targetReplicasJSON, &rollbackOfJSON, &stateStr, &createdAtStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return in, fmt.Errorf("%w", domain.ErrNotFound)
		}
		return in, fmt.Errorf("scan intent: %w", err)
	}
	in.ID = domain.IntentID(id)
	in.State = domain.IntentState(stateStr)

	if err := json.Unmarshal([]byte(targetsJSON), &in.Targets); err != nil {
		return in, fmt.Errorf("unmarshal targets: %w", err)
	}
	if targetRefsJSON.Valid {
		if err := json.Unmarshal([]byte(targetRefsJSON.String), &in.TargetRefs); err != nil {
			return in, fmt.Errorf("unmarshal target refs: %w", err)
		}
	}
	if targetReplicasJSON.Valid {
		if err := json.Unmarshal([]byte(targetReplicasJSON.String), &in.TargetReplicas); err != nil {
			return in, fmt.Errorf("unmarshal target replicas: %w", err)
		}
	}
	if rollbackOfJSON.Valid {
		if err := json.Unmarshal([]byte(rollbackOfJSON.String), &in.RollbackOf); err != nil {
			return in, fmt.Errorf("unmarshal rollback map: %w", err)
		}
	}
	t, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return in, fmt.Errorf("parse created_at: %w", err)
	}
	in.CreatedAt = t
	return in, nil
}

func nullString(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
