// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package store persists and queries recorded authorization decisions.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/policy/audit"
)

// poolIface is the subset of pgxpool.Pool the repository needs.
type poolIface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DecisionFilter narrows a decision query.
type DecisionFilter struct {
	// Effect filters by evaluated outcome ("allow", "deny", "default_deny").
	// Empty matches every effect.
	Effect string
	// UserID filters to a single principal. Empty matches everyone.
	UserID string
	// Limit caps the number of rows. Zero or negative means 100.
	Limit int
}

// DecisionRepository reads and prunes persisted authorization decisions.
type DecisionRepository interface {
	RecentDecisions(ctx context.Context, filter DecisionFilter) ([]audit.Entry, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	PurgeAllowsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresDecisionRepository implements DecisionRepository using PostgreSQL.
type PostgresDecisionRepository struct {
	pool poolIface
}

// NewPostgresDecisionRepository creates a decision repository over the pool.
func NewPostgresDecisionRepository(pool poolIface) *PostgresDecisionRepository {
	return &PostgresDecisionRepository{pool: pool}
}

// RecentDecisions returns recorded decisions matching the filter, newest
// first. Ordering by id is ordering by time because entry ids are ULIDs.
func (r *PostgresDecisionRepository) RecentDecisions(ctx context.Context, filter DecisionFilter) ([]audit.Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, role, segment, organization_id, user_id,
	                 action, subject, effect, reason, rule_name,
	                 duration_us, timestamp
	          FROM decision_audit_log
	          WHERE ($1 = '' OR effect = $1)
	            AND ($2 = '' OR user_id = $2)
	          ORDER BY id DESC
	          LIMIT $3`

	rows, err := r.pool.Query(ctx, query, filter.Effect, filter.UserID, limit)
	if err != nil {
		return nil, oops.With("operation", "query recent decisions").Wrap(err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		var effect string
		if err := rows.Scan(&e.ID, &e.Role, &e.Segment, &e.OrganizationID, &e.UserID,
			&e.Action, &e.Subject, &effect, &e.Reason, &e.RuleName,
			&e.DurationUS, &e.Timestamp); err != nil {
			return nil, oops.With("operation", "scan decision row").Wrap(err)
		}
		e.Effect = policy.ParseEffect(effect)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate decisions").Wrap(err)
	}

	return entries, nil
}

// PurgeBefore deletes decisions recorded before the cutoff and reports how
// many rows were removed. Retention enforcement calls this on a schedule.
func (r *PostgresDecisionRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM decision_audit_log WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, oops.With("operation", "purge decisions").
			With("cutoff", cutoff.Format(time.RFC3339)).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// PurgeAllowsBefore deletes allow decisions recorded before the cutoff.
// Allows are high-volume and low-value, so they get a much shorter
// retention window than denials.
func (r *PostgresDecisionRepository) PurgeAllowsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM decision_audit_log WHERE effect = 'allow' AND timestamp < $1`, cutoff)
	if err != nil {
		return 0, oops.With("operation", "purge allow decisions").
			With("cutoff", cutoff.Format(time.RFC3339)).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}
