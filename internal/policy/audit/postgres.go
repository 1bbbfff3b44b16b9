// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const insertEntrySQL = `
	INSERT INTO decision_audit_log (
		id, role, segment, organization_id, user_id,
		action, subject, effect, reason, rule_name,
		duration_us, timestamp
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// DB is the subset of pgxpool.Pool used by the writer.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresWriter implements Writer for PostgreSQL.
type PostgresWriter struct {
	db          DB
	asyncChan   chan Entry
	stopChan    chan struct{}
	wg          sync.WaitGroup
	batchSize   int
	flushPeriod time.Duration
}

// NewPostgresWriter creates a PostgresWriter over the given connection pool.
func NewPostgresWriter(db DB) *PostgresWriter {
	writer := &PostgresWriter{
		db:          db,
		asyncChan:   make(chan Entry, 1000),
		stopChan:    make(chan struct{}),
		batchSize:   100,
		flushPeriod: 1 * time.Second,
	}

	writer.wg.Add(1)
	go writer.batchConsumer()

	return writer
}

// WriteSync performs a synchronous write to the database.
func (w *PostgresWriter) WriteSync(ctx context.Context, entry Entry) error {
	_, err := w.db.Exec(ctx, insertEntrySQL, entryArgs(entry)...)
	if err != nil {
		if isDuplicateEntry(err) {
			// Replays can resubmit entries already persisted.
			return nil
		}
		return oops.With("action", entry.Action).
			With("subject", entry.Subject).
			With("effect", entry.Effect.String()).
			Wrap(err)
	}

	return nil
}

// WriteAsync queues an entry for asynchronous batch writing.
func (w *PostgresWriter) WriteAsync(entry Entry) error {
	select {
	case w.asyncChan <- entry:
		return nil
	default:
		channelFullCounter.Inc()
		return fmt.Errorf("async channel full")
	}
}

// batchConsumer processes async writes in batches.
func (w *PostgresWriter) batchConsumer() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	var batch []Entry

	flush := func() {
		if len(batch) == 0 {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := w.writeBatch(ctx, batch); err != nil {
			slog.Error("failed to write audit batch", "error", err, "count", len(batch))
			failuresCounter.WithLabelValues("batch_write_failed").Inc()
		}

		batch = batch[:0]
	}

	for {
		select {
		case entry := <-w.asyncChan:
			batch = append(batch, entry)
			if len(batch) >= w.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-w.stopChan:
			// Drain remaining entries before exiting.
			for {
				select {
				case entry := <-w.asyncChan:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// writeBatch writes multiple entries in a single pipelined batch.
func (w *PostgresWriter) writeBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := range entries {
		batch.Queue(insertEntrySQL, entryArgs(entries[i])...)
	}

	results := w.db.SendBatch(ctx, batch)
	defer func() {
		//nolint:errcheck // Close error repeats the per-entry errors already logged
		_ = results.Close()
	}()

	for i := range entries {
		if _, err := results.Exec(); err != nil {
			if isDuplicateEntry(err) {
				continue
			}
			slog.Error("failed to insert audit entry",
				"error", err,
				"id", entries[i].ID,
				"action", entries[i].Action,
			)
			// Continue with other entries.
		}
	}

	return nil
}

// Close gracefully shuts down the writer.
func (w *PostgresWriter) Close() error {
	close(w.stopChan)
	w.wg.Wait()
	return nil
}

func entryArgs(entry Entry) []any {
	return []any{
		entry.ID,
		entry.Role,
		entry.Segment,
		entry.OrganizationID,
		entry.UserID,
		entry.Action,
		entry.Subject,
		entry.Effect.String(),
		entry.Reason,
		entry.RuleName,
		entry.DurationUS,
		entry.Timestamp,
	}
}

func isDuplicateEntry(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	return true
}

// Connect opens a pgx pool and verifies connectivity with exponential
// backoff. The audit store is often racing the database at startup.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("AUDIT_DB_CONFIG").Wrap(err)
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("AUDIT_DB_UNAVAILABLE").Wrap(err)
	}

	return pool, nil
}
