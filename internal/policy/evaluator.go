// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// Decide evaluates a query against an ordered rule list.
//
// The algorithm is the contract both hosts depend on and must not drift:
//  1. Rules are scanned in reverse declaration order, so the most recently
//     declared matching rule wins. This is what lets the compiler express
//     "broad grant, then narrow override" purely by ordering.
//  2. A rule matches when the queried action is in its action set (or the
//     set contains manage) and the queried subject is in its subject set
//     (or the set contains all).
//  3. A conditioned rule is checked against the instance only when one was
//     supplied; a type-level query (nil instance) ignores conditions. An
//     unsatisfied condition skips the rule, it does not deny by itself.
//  4. No matching rule means default deny.
//
// Queries outside the canonical vocabulary answer fail-closed with an
// unknown-vocabulary reason rather than being silently ignored.
func Decide(rules []Rule, action vocab.Action, subject vocab.Subject, inst Instance) Decision {
	if !vocab.IsAction(action) {
		return NewDecision(EffectDeny, ReasonUnknownAction, "", -1)
	}
	if !vocab.IsSubject(subject) {
		return NewDecision(EffectDeny, ReasonUnknownSubject, "", -1)
	}

	for i := len(rules) - 1; i >= 0; i-- {
		rule := rules[i]
		if !rule.matchesAction(action) || !rule.matchesSubject(subject) {
			continue
		}
		if len(rule.Condition) > 0 && inst != nil && !rule.Condition.SatisfiedBy(inst) {
			continue
		}
		return NewDecision(rule.Effect.ToEffect(), ReasonRuleMatched, rule.Name, i)
	}

	return NewDecision(EffectDefaultDeny, ReasonNoMatchingRule, "", -1)
}
