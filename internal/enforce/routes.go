// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package enforce

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gobwas/glob"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// maxRoutePatternLen is the maximum allowed length for a route pattern.
const maxRoutePatternLen = 100

// maxRouteWildcards is the maximum number of wildcard characters (* or ?)
// allowed in a route pattern.
const maxRouteWildcards = 5

// RouteRule binds a route pattern to the permission it requires. Patterns
// are globs over "METHOD /path" with '/' as the separator, so a single `*`
// matches one path segment (`/api/content/*`) and never crosses into
// nested paths.
type RouteRule struct {
	Pattern string
	Action  vocab.Action
	Subject vocab.Subject
	// Instance optionally extracts instance attributes for the check.
	Instance InstanceFunc

	compiled glob.Glob
}

// RouteMap matches incoming requests to required permissions. Patterns are
// checked in declaration order and the first match wins, so narrower
// patterns must be listed before broader ones.
type RouteMap struct {
	rules []RouteRule
}

// NewRouteMap compiles the route rules. Every pattern is validated against
// the same safety limits at startup, so a bad pattern fails deployment
// instead of failing open at request time.
func NewRouteMap(rules []RouteRule) (*RouteMap, error) {
	compiled := make([]RouteRule, len(rules))
	for i, rule := range rules {
		if err := validateRoutePattern(rule.Pattern); err != nil {
			return nil, err
		}
		if !vocab.IsAction(rule.Action) {
			return nil, fmt.Errorf("route %q: unknown action %q", rule.Pattern, rule.Action)
		}
		if !vocab.IsSubject(rule.Subject) {
			return nil, fmt.Errorf("route %q: unknown subject %q", rule.Pattern, rule.Subject)
		}

		g, err := glob.Compile(rule.Pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", rule.Pattern, err)
		}

		rule.compiled = g
		compiled[i] = rule
	}
	return &RouteMap{rules: compiled}, nil
}

// Lookup returns the first rule matching "METHOD /path". The second return
// is false when no rule covers the route.
func (m *RouteMap) Lookup(method, path string) (RouteRule, bool) {
	key := method + " " + path
	for _, rule := range m.rules {
		if rule.compiled.Match(key) {
			return rule, true
		}
	}
	return RouteRule{}, false
}

// Handler enforces the route map over next. Routes without a mapping are
// denied with 403: an unmapped surface is a configuration gap, and gaps
// fail closed.
func (m *RouteMap) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer recoverInternal(w, r)

		rule, ok := m.Lookup(r.Method, r.URL.Path)
		if !ok {
			forbidden(w, vocab.ActionManage, vocab.SubjectAll)
			return
		}

		ability, found := AbilityFrom(r.Context())
		if !found {
			unauthorized(w, "authentication required")
			return
		}

		var inst policy.Instance
		if rule.Instance != nil {
			inst = rule.Instance(r)
		}

		if !ability.Decide(rule.Action, rule.Subject, inst).IsAllowed() {
			forbidden(w, rule.Action, rule.Subject)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// validateRoutePattern checks a route pattern against safety limits.
func validateRoutePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("route pattern must not be empty")
	}
	if len(pattern) > maxRoutePatternLen {
		return fmt.Errorf("route pattern exceeds maximum length of %d: %d characters", maxRoutePatternLen, len(pattern))
	}

	if strings.Contains(pattern, "[") {
		return fmt.Errorf("route pattern contains bracket character class (not allowed): %q", pattern)
	}
	if strings.Contains(pattern, "{") {
		return fmt.Errorf("route pattern contains brace alternation (not allowed): %q", pattern)
	}
	if strings.Contains(pattern, "**") {
		return fmt.Errorf("route pattern contains globstar (not allowed): %q", pattern)
	}

	wildcardCount := 0
	for _, ch := range pattern {
		if ch == '*' || ch == '?' {
			wildcardCount++
		}
	}
	if wildcardCount > maxRouteWildcards {
		return fmt.Errorf("route pattern has %d wildcard characters (maximum %d)", wildcardCount, maxRouteWildcards)
	}

	return nil
}
