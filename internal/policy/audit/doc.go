// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package audit provides audit logging for authorization decisions.
//
// # Overview
//
// The audit package records the decisions the policy engine hands to its
// observer hook, with sync/async writes and a WAL (Write-Ahead Log)
// fallback for resilience. It supports three logging modes and provides
// PostgreSQL storage.
//
// # Audit Modes
//
//   - ModeMinimal: logs explicit denials only (sync)
//   - ModeDenialsOnly: logs denials and default denials (sync)
//   - ModeAll: logs everything - denials sync, allows async
//
// # Architecture
//
// The Logger routes entries based on effect and mode:
//
//	deny, default_deny → sync write → WAL fallback on failure
//	allow (in ModeAll only) → async write via buffered channel
//
// PostgresWriter implements batched async writes with periodic flushing.
//
// # Resilience
//
// When sync writes fail, entries are written to a WAL file at
// $XDG_STATE_HOME/gatewarden/audit-wal.jsonl. The ReplayWAL method can be
// used to recover entries after outages.
//
// # Metrics
//
//   - authz_audit_channel_full_total: channel overflow counter
//   - authz_audit_failures_total{reason}: failure counter by reason
//   - authz_audit_wal_entries: current WAL entry count
package audit
