// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package principal turns raw, loosely-typed identity claims into a
// validated Principal. Normalization is total: every input, however
// malformed, yields a well-formed Principal — possibly gated — and never
// panics or returns an error. The gate flag is the single place where
// malformed identity data is caught; downstream code can trust the shape.
package principal

import "strings"

// Role is a canonical dashboard role.
type Role string

// Canonical roles plus the sentinel for anything that fails to normalize.
const (
	RoleAdmin        Role = "admin"
	RoleEditor       Role = "editor"
	RoleApprover     Role = "approver"
	RoleViewer       Role = "viewer"
	RoleUnauthorized Role = "unauthorized"
)

// Segment is a tenant category. Internal staff are unscoped; partners are
// organization-scoped. Customer and advisor segments are recognized but not
// allowed into this application.
type Segment string

// Segment values.
const (
	SegmentInternal Segment = "internal"
	SegmentPartner  Segment = "partner"
	SegmentCustomer Segment = "customer"
	SegmentAdvisor  Segment = "advisor"
	SegmentUnknown  Segment = "unknown"
)

// Roles returns the canonical roles in privilege order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleEditor, RoleApprover, RoleViewer}
}

// Segments returns the segments this application serves.
func Segments() []Segment {
	return []Segment{SegmentInternal, SegmentPartner}
}

// GateReason classifies why a Principal was gated.
type GateReason string

// Gate reasons, surfaced to callers so the host can show actionable text
// distinguishing a missing claim from a bad value from a known-but-barred
// segment or role.
const (
	GateNone             GateReason = ""
	GateMissingSegment   GateReason = "missing_segment"
	GateInvalidSegment   GateReason = "invalid_segment"
	GateSegmentBarred    GateReason = "segment_not_allowed"
	GateUnauthorizedRole GateReason = "unauthorized_role"
)

// roleAliases maps legacy role spellings to canonical roles. Lookup is on
// the lower-cased claim value; the canonical names map to themselves.
var roleAliases = map[string]Role{
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"superadmin":    RoleAdmin,
	"manager":       RoleAdmin,
	"editor":        RoleEditor,
	"creator":       RoleEditor,
	"contributor":   RoleEditor,
	"author":        RoleEditor,
	"approver":      RoleApprover,
	"reviewer":      RoleApprover,
	"moderator":     RoleApprover,
	"viewer":        RoleViewer,
	"member":        RoleViewer,
	"reader":        RoleViewer,
	"guest":         RoleViewer,
}

// customerTypes maps the server-boundary customer-type claim onto a
// segment. Anything absent from this table is rejected.
var customerTypes = map[string]Segment{
	"staff":    SegmentInternal,
	"internal": SegmentInternal,
	"partner":  SegmentPartner,
	"reseller": SegmentPartner,
}

// Principal is the validated identity tuple the engine consumes. It is an
// immutable value: two Principals with equal fields are interchangeable.
type Principal struct {
	Role           Role
	Segment        Segment
	OrganizationID string
	UserID         string

	gated      bool
	gateReason GateReason
}

// Gated reports whether the Principal failed normalization and must compile
// to a universal-deny ability.
func (p Principal) Gated() bool {
	return p.gated
}

// GateReason returns why the Principal was gated, or GateNone.
func (p Principal) GateReason() GateReason {
	return p.gateReason
}

// gatedPrincipal builds the terminal-deny Principal for a failed
// normalization. Role and org are deliberately dropped: a gated Principal
// carries no capability-relevant state.
func gatedPrincipal(reason GateReason) Principal {
	return Principal{
		Role:       RoleUnauthorized,
		Segment:    SegmentUnknown,
		gated:      true,
		gateReason: reason,
	}
}

// NormalizeRole maps a raw role claim to a canonical role. Unmapped values
// normalize to RoleUnauthorized.
func NormalizeRole(raw string) Role {
	role, ok := roleAliases[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return RoleUnauthorized
	}
	return role
}

// FromClaims normalizes a browser-boundary claims bag. The bag must carry a
// role string under "role" and a segment string under "segment";
// "organization_id" and "user_id" are optional. Claim values of the wrong
// dynamic type are treated the same as absent claims.
func FromClaims(claims map[string]any) Principal {
	segRaw, ok := stringClaim(claims, "segment")
	if !ok || strings.TrimSpace(segRaw) == "" {
		return gatedPrincipal(GateMissingSegment)
	}

	var segment Segment
	switch Segment(strings.ToLower(strings.TrimSpace(segRaw))) {
	case SegmentInternal:
		segment = SegmentInternal
	case SegmentPartner:
		segment = SegmentPartner
	case SegmentCustomer, SegmentAdvisor:
		// Recognized tenant categories that this application does not serve.
		return gatedPrincipal(GateSegmentBarred)
	default:
		return gatedPrincipal(GateInvalidSegment)
	}

	roleRaw, _ := stringClaim(claims, "role")
	role := NormalizeRole(roleRaw)
	if role == RoleUnauthorized {
		return gatedPrincipal(GateUnauthorizedRole)
	}

	orgID, _ := stringClaim(claims, "organization_id")
	userID, _ := stringClaim(claims, "user_id")

	return Principal{
		Role:           role,
		Segment:        segment,
		OrganizationID: orgID,
		UserID:         userID,
	}
}

// FromCustomerType normalizes the server-boundary identity shape: a role
// string plus a customer-type string from the request context. The customer
// type is mapped through the closed allow-list; anything else gates.
func FromCustomerType(role, customerType, organizationID, userID string) Principal {
	ct := strings.ToLower(strings.TrimSpace(customerType))
	if ct == "" {
		return gatedPrincipal(GateMissingSegment)
	}

	segment, ok := customerTypes[ct]
	if !ok {
		return gatedPrincipal(GateInvalidSegment)
	}

	normalized := NormalizeRole(role)
	if normalized == RoleUnauthorized {
		return gatedPrincipal(GateUnauthorizedRole)
	}

	return Principal{
		Role:           normalized,
		Segment:        segment,
		OrganizationID: organizationID,
		UserID:         userID,
	}
}

// stringClaim extracts a string-typed claim. Non-string values are reported
// as absent rather than coerced.
func stringClaim(claims map[string]any, key string) (string, bool) {
	v, ok := claims[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
