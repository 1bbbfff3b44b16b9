// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package enforce guards HTTP surfaces with compiled abilities. It answers
// the same queries as the policy package; the middleware here only decides
// how a denial is reported, never whether something is allowed.
package enforce

import (
	"context"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/principal"
)

type abilityKey struct{}

type principalKey struct{}

// WithAbility returns a context carrying the compiled ability for the
// authenticated principal. The authentication layer attaches it once per
// request, after claims are normalized.
func WithAbility(ctx context.Context, ability *policy.Ability) context.Context {
	return context.WithValue(ctx, abilityKey{}, ability)
}

// AbilityFrom extracts the compiled ability from the context. The second
// return is false when no authentication layer ran.
func AbilityFrom(ctx context.Context) (*policy.Ability, bool) {
	ability, ok := ctx.Value(abilityKey{}).(*policy.Ability)
	return ability, ok && ability != nil
}

// WithPrincipal returns a context carrying the normalized principal, for
// handlers that need the identity itself rather than its ability.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the normalized principal from the context.
func PrincipalFrom(ctx context.Context) (principal.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal.Principal)
	return p, ok
}
