// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// RetentionConfig defines the retention policy for the decision audit log.
type RetentionConfig struct {
	RetainDenials time.Duration // How long to keep denial records
	RetainAllows  time.Duration // How long to keep allow records
	PurgeInterval time.Duration // How often to run the purge cycle
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		RetainDenials: 90 * 24 * time.Hour,
		RetainAllows:  7 * 24 * time.Hour,
		PurgeInterval: 24 * time.Hour,
	}
}

// RetentionWorker runs periodic retention maintenance on the decision
// audit log.
type RetentionWorker struct {
	cfg    RetentionConfig
	repo   DecisionRepository
	logger *slog.Logger
	clock  func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRetentionWorker creates a new retention worker.
func NewRetentionWorker(cfg RetentionConfig, repo DecisionRepository) *RetentionWorker {
	return &RetentionWorker{
		cfg:    cfg,
		repo:   repo,
		logger: slog.Default(),
		clock:  time.Now,
	}
}

// RunOnce executes a single retention cycle. Both purges are attempted even
// if the first fails; errors are combined.
func (w *RetentionWorker) RunOnce(ctx context.Context) error {
	now := w.clock()
	var errs []error

	purged, err := w.repo.PurgeAllowsBefore(ctx, now.Add(-w.cfg.RetainAllows))
	if err != nil {
		w.logger.Error("purge expired allows failed", "error", err)
		errs = append(errs, err)
	} else if purged > 0 {
		w.logger.Info("purged expired allow records", "count", purged)
	}

	purged, err = w.repo.PurgeBefore(ctx, now.Add(-w.cfg.RetainDenials))
	if err != nil {
		w.logger.Error("purge expired records failed", "error", err)
		errs = append(errs, err)
	} else if purged > 0 {
		w.logger.Info("purged expired records", "count", purged)
	}

	return errors.Join(errs...)
}

// Start begins periodic retention maintenance.
func (w *RetentionWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the retention worker and waits for completion.
func (w *RetentionWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *RetentionWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PurgeInterval)
	defer ticker.Stop()

	// Run once immediately
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("retention cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("retention cycle failed", "error", err)
			}
		}
	}
}
