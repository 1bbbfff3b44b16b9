// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/xdg"
)

// Mode controls which decisions are logged.
type Mode string

// Audit logging modes.
const (
	ModeMinimal     Mode = "minimal"      // explicit denials only
	ModeDenialsOnly Mode = "denials_only" // denials + default_deny
	ModeAll         Mode = "all"          // everything
)

// Entry represents a single authorization decision to be logged.
type Entry struct {
	ID             string        `json:"id"`
	Role           string        `json:"role"`
	Segment        string        `json:"segment"`
	OrganizationID string        `json:"organization_id,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	Action         string        `json:"action"`
	Subject        string        `json:"subject"`
	Effect         policy.Effect `json:"effect"`
	Reason         string        `json:"reason"`
	RuleName       string        `json:"rule_name,omitempty"`
	DurationUS     int64         `json:"duration_us"`
	Timestamp      time.Time     `json:"timestamp"`
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// newEntryID generates a ULID for an audit entry.
func newEntryID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// EntryFromEvent converts an engine decision event into an audit entry.
func EntryFromEvent(e policy.DecisionEvent) Entry {
	return Entry{
		ID:             newEntryID(),
		Role:           string(e.Principal.Role),
		Segment:        string(e.Principal.Segment),
		OrganizationID: e.Principal.OrganizationID,
		UserID:         e.Principal.UserID,
		Action:         e.Action.String(),
		Subject:        e.Subject.String(),
		Effect:         e.Decision.Effect,
		Reason:         e.Decision.Reason,
		RuleName:       e.Decision.RuleName,
		DurationUS:     e.Duration.Microseconds(),
		Timestamp:      time.Now(),
	}
}

// Writer is the interface for writing audit entries to a backend.
type Writer interface {
	WriteSync(ctx context.Context, entry Entry) error
	WriteAsync(entry Entry) error
	Close() error
}

var (
	channelFullCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "authz_audit_channel_full_total",
		Help: "Total number of times async audit channel was full",
	})

	failuresCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_audit_failures_total",
		Help: "Total number of audit logging failures",
	}, []string{"reason"})

	walEntriesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "authz_audit_wal_entries",
		Help: "Current number of entries in the WAL",
	})
)

// Logger routes audit entries based on mode and effect.
type Logger struct {
	mode      Mode
	writer    Writer
	walPath   string
	walFile   *os.File
	walMu     sync.Mutex
	asyncChan chan Entry
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewLogger creates a Logger with the given mode, writer, and WAL path.
// If walPath is empty, a default path in the XDG state directory is used.
func NewLogger(mode Mode, writer Writer, walPath string) *Logger {
	if walPath == "" {
		stateDir := xdg.StateDir()
		if err := xdg.EnsureDir(stateDir); err != nil {
			slog.Error("failed to ensure state directory", "error", err)
			walPath = filepath.Join(os.TempDir(), "gatewarden-audit-wal.jsonl")
		} else {
			walPath = filepath.Join(stateDir, "audit-wal.jsonl")
		}
	}

	logger := &Logger{
		mode:      mode,
		writer:    writer,
		walPath:   walPath,
		asyncChan: make(chan Entry, 1000),
		stopChan:  make(chan struct{}),
	}

	logger.wg.Add(1)
	go logger.asyncConsumer()

	return logger
}

// Observer adapts the Logger to the engine's observer hook. The engine
// only reports gate/deny outcomes, which every mode records synchronously.
func (l *Logger) Observer() policy.Observer {
	return policy.ObserverFunc(func(e policy.DecisionEvent) {
		if err := l.Log(context.Background(), EntryFromEvent(e)); err != nil {
			slog.Warn("audit log failed", "error", err)
		}
	})
}

// Log routes an audit entry based on the configured mode and effect.
func (l *Logger) Log(ctx context.Context, entry Entry) error {
	shouldLog, useSync := l.shouldLog(entry.Effect)
	if !shouldLog {
		return nil
	}

	if useSync {
		if err := l.writer.WriteSync(ctx, entry); err != nil {
			// Fall back to the WAL so the denial survives a backend outage.
			if walErr := l.writeToWAL(entry); walErr != nil {
				slog.Error("audit write failed: both backend and WAL failed",
					"backend_error", err,
					"wal_error", walErr,
					"action", entry.Action,
					"subject", entry.Subject,
					"effect", entry.Effect,
				)
				failuresCounter.WithLabelValues("wal_failed").Inc()
			}
		}
		return nil
	}

	select {
	case l.asyncChan <- entry:
		return nil
	default:
		channelFullCounter.Inc()
		return nil
	}
}

// shouldLog determines if an entry should be logged based on mode and
// effect. Returns (shouldLog, useSync).
func (l *Logger) shouldLog(effect policy.Effect) (shouldLog, useSync bool) {
	switch l.mode {
	case ModeMinimal:
		return effect == policy.EffectDeny, effect == policy.EffectDeny

	case ModeDenialsOnly:
		switch effect {
		case policy.EffectDeny, policy.EffectDefaultDeny:
			return true, true
		default:
			return false, false
		}

	case ModeAll:
		switch effect {
		case policy.EffectDeny, policy.EffectDefaultDeny:
			return true, true
		case policy.EffectAllow:
			return true, false
		default:
			return false, false
		}

	default:
		return false, false
	}
}

// asyncConsumer processes async writes from the channel.
func (l *Logger) asyncConsumer() {
	defer l.wg.Done()

	for {
		select {
		case entry := <-l.asyncChan:
			if err := l.writer.WriteAsync(entry); err != nil {
				slog.Error("async audit write failed",
					"error", err,
					"action", entry.Action,
					"subject", entry.Subject,
				)
				failuresCounter.WithLabelValues("async_write_failed").Inc()
			}
		case <-l.stopChan:
			l.drainAsync()
			return
		}
	}
}

// drainAsync processes all remaining entries in the channel.
func (l *Logger) drainAsync() {
	for {
		select {
		case entry := <-l.asyncChan:
			if err := l.writer.WriteAsync(entry); err != nil {
				slog.Error("async audit write failed during drain",
					"error", err,
					"action", entry.Action,
				)
				failuresCounter.WithLabelValues("async_write_failed").Inc()
			}
		default:
			return
		}
	}
}

// writeToWAL writes an entry to the write-ahead log.
func (l *Logger) writeToWAL(entry Entry) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if l.walFile == nil {
		file, err := os.OpenFile(l.walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_SYNC, 0o600)
		if err != nil {
			return oops.With("path", l.walPath).Wrap(err)
		}
		l.walFile = file
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Wrap(err)
	}

	if _, err := fmt.Fprintf(l.walFile, "%s\n", data); err != nil {
		return oops.Wrap(err)
	}

	walEntriesGauge.Inc()
	return nil
}

// ReplayWAL reads all entries from the WAL and writes them to the writer.
// On success, truncates the WAL file.
func (l *Logger) ReplayWAL(ctx context.Context) error {
	l.walMu.Lock()
	defer l.walMu.Unlock()

	if _, err := os.Stat(l.walPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(l.walPath)
	if err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	if len(data) == 0 {
		return nil
	}

	replayed := 0
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Error("failed to unmarshal WAL entry", "error", err, "line", line)
			failuresCounter.WithLabelValues("wal_unmarshal_failed").Inc()
			continue
		}

		if err := l.writer.WriteSync(ctx, entry); err != nil {
			slog.Error("failed to replay WAL entry", "error", err, "id", entry.ID)
			failuresCounter.WithLabelValues("wal_replay_failed").Inc()
			// Continue with other entries.
		}
		replayed++
	}

	if err := os.Truncate(l.walPath, 0); err != nil {
		return oops.With("path", l.walPath).Wrap(err)
	}

	walEntriesGauge.Set(0)
	slog.Info("replayed WAL entries", "count", replayed)
	return nil
}

// Close gracefully shuts down the logger.
func (l *Logger) Close() error {
	close(l.stopChan)
	l.wg.Wait()

	if err := l.writer.Close(); err != nil {
		return oops.Wrap(err)
	}

	l.walMu.Lock()
	defer l.walMu.Unlock()
	if l.walFile != nil {
		if err := l.walFile.Close(); err != nil {
			return oops.Wrap(err)
		}
		l.walFile = nil
	}

	return nil
}
