// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

//go:build integration

package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/policy/audit"
	"github.com/gatewarden/gatewarden/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container with the decision
// audit schema applied.
func setupPostgresContainer() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gatewarden_test"),
		postgres.WithUsername("gatewarden"),
		postgres.WithPassword("gatewarden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	_ = migrator.Close()

	pool, err := audit.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup, nil
}

var _ = Describe("PostgresDecisionRepository", func() {
	var pool *pgxpool.Pool
	var cleanup func()
	var writer *audit.PostgresWriter
	var repo *store.PostgresDecisionRepository

	BeforeEach(func() {
		var err error
		pool, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		writer = audit.NewPostgresWriter(pool)
		repo = store.NewPostgresDecisionRepository(pool)
	})

	AfterEach(func() {
		Expect(writer.Close()).To(Succeed())
		cleanup()
	})

	writeEntry := func(effect policy.Effect, userID string, ts time.Time) audit.Entry {
		entry := audit.Entry{
			ID:             fmt.Sprintf("%020d%s", ts.UnixNano(), userID),
			Role:           "editor",
			Segment:        "partner",
			OrganizationID: "org-1",
			UserID:         userID,
			Action:         "delete",
			Subject:        "Content",
			Effect:         effect,
			Reason:         "rule_matched",
			RuleName:       "restrict:editor-no-approve-delete",
			DurationUS:     50,
			Timestamp:      ts,
		}
		Expect(writer.WriteSync(context.Background(), entry)).To(Succeed())
		return entry
	}

	Describe("RecentDecisions", func() {
		It("returns entries newest first", func() {
			now := time.Now().UTC().Truncate(time.Microsecond)
			writeEntry(policy.EffectDeny, "user-a", now.Add(-2*time.Minute))
			latest := writeEntry(policy.EffectDeny, "user-b", now)

			entries, err := repo.RecentDecisions(context.Background(), store.DecisionFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].ID).To(Equal(latest.ID))
		})

		It("filters by effect", func() {
			now := time.Now().UTC().Truncate(time.Microsecond)
			writeEntry(policy.EffectAllow, "user-a", now.Add(-time.Minute))
			writeEntry(policy.EffectDeny, "user-b", now)

			entries, err := repo.RecentDecisions(context.Background(), store.DecisionFilter{Effect: "deny"})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Effect).To(Equal(policy.EffectDeny))
		})

		It("filters by user", func() {
			now := time.Now().UTC().Truncate(time.Microsecond)
			writeEntry(policy.EffectDeny, "user-a", now.Add(-time.Minute))
			writeEntry(policy.EffectDeny, "user-b", now)

			entries, err := repo.RecentDecisions(context.Background(), store.DecisionFilter{UserID: "user-a"})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].UserID).To(Equal("user-a"))
		})

		It("respects the limit", func() {
			now := time.Now().UTC().Truncate(time.Microsecond)
			for i := range 5 {
				writeEntry(policy.EffectDeny, fmt.Sprintf("user-%d", i), now.Add(time.Duration(i)*time.Second))
			}

			entries, err := repo.RecentDecisions(context.Background(), store.DecisionFilter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2))
		})
	})

	Describe("PurgeBefore", func() {
		It("removes only entries older than the cutoff", func() {
			now := time.Now().UTC().Truncate(time.Microsecond)
			writeEntry(policy.EffectDeny, "old", now.Add(-48*time.Hour))
			kept := writeEntry(policy.EffectDeny, "new", now)

			removed, err := repo.PurgeBefore(context.Background(), now.Add(-24*time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(Equal(int64(1)))

			entries, err := repo.RecentDecisions(context.Background(), store.DecisionFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].ID).To(Equal(kept.ID))
		})
	})

	Describe("effect constraint", func() {
		It("rejects unknown effect strings", func() {
			_, err := pool.Exec(context.Background(),
				`INSERT INTO decision_audit_log (id, role, segment, action, subject, effect, reason, timestamp)
				 VALUES ('x', 'editor', 'internal', 'read', 'Content', 'permit', 'rule_matched', now())`)
			Expect(err).To(HaveOccurred())
		})
	})
})
