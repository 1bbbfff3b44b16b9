// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package policy compiles a validated Principal into an ordered rule list
// (an Ability) and evaluates allow/deny queries against it. The compiler
// and evaluator here are the single source of authorization truth: the UI
// host and the enforcement middleware both consume this package, so their
// verdicts cannot diverge.
package policy

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/vocab"
)

// Effect represents the evaluated outcome of an authorization decision.
type Effect int

// Effect constants define the possible outcomes of rule evaluation.
const (
	EffectDefaultDeny Effect = iota // default_deny
	EffectAllow                     // allow
	EffectDeny                      // deny
)

var effectStrings = [...]string{
	"default_deny",
	"allow",
	"deny",
}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectStrings) {
		return effectStrings[e]
	}
	return fmt.Sprintf("unknown(%d)", int(e))
}

// ParseEffect converts a stored effect string back to an Effect. Unknown
// strings map to EffectDefaultDeny.
func ParseEffect(s string) Effect {
	for i, name := range effectStrings {
		if s == name {
			return Effect(i)
		}
	}
	return EffectDefaultDeny
}

// RuleEffect is the declared effect of a rule.
type RuleEffect string

// RuleEffect constants define the valid rule effect declarations.
const (
	RuleAllow RuleEffect = "allow"
	RuleDeny  RuleEffect = "deny"
)

// ToEffect converts a RuleEffect to the runtime Effect type. Any unknown
// value maps to EffectDefaultDeny so a corrupted rule can never grant.
func (re RuleEffect) ToEffect() Effect {
	switch re {
	case RuleAllow:
		return EffectAllow
	case RuleDeny:
		return EffectDeny
	default:
		return EffectDefaultDeny
	}
}

// Condition is an attribute-equality constraint attached to a rule. A rule
// carrying a condition matches an instance-level query only when every
// condition key equals the corresponding instance field.
type Condition map[string]string

// ConditionOrganizationID is the only condition attribute currently
// emitted by the compiler.
const ConditionOrganizationID = "organization_id"

// Instance is the record a caller supplies for an instance-level check.
// Hosts project the relevant fields of a loaded record into this map;
// comparison is strict string equality, no coercion.
type Instance map[string]string

// SatisfiedBy reports whether every condition key equals the corresponding
// instance field.
func (c Condition) SatisfiedBy(inst Instance) bool {
	for key, want := range c {
		got, ok := inst[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Rule is a single allow/deny statement over actions and subjects with an
// optional condition. Rules are immutable after compilation; declaration
// order within an Ability is semantically significant.
type Rule struct {
	Name      string
	Effect    RuleEffect
	Actions   []vocab.Action
	Subjects  []vocab.Subject
	Condition Condition
}

// matchesAction reports whether the rule covers the queried action, either
// literally or through the manage super-action.
func (r Rule) matchesAction(action vocab.Action) bool {
	for _, a := range r.Actions {
		if a == action || a == vocab.ActionManage {
			return true
		}
	}
	return false
}

// matchesSubject reports whether the rule covers the queried subject,
// either literally or through the "all" wildcard.
func (r Rule) matchesSubject(subject vocab.Subject) bool {
	for _, s := range r.Subjects {
		if s == subject || s == vocab.SubjectAll {
			return true
		}
	}
	return false
}

// Decision reasons emitted by the evaluator.
const (
	ReasonRuleMatched    = "rule matched"
	ReasonNoMatchingRule = "no matching rule"
	ReasonUnknownAction  = "unknown action"
	ReasonUnknownSubject = "unknown subject"
	ReasonPrincipalGated = "principal gated"
)

// Decision is the result of evaluating a query against an Ability.
// The allowed field is unexported to prevent invariant bypass.
type Decision struct {
	allowed   bool
	Effect    Effect
	Reason    string
	RuleName  string
	RuleIndex int
}

// NewDecision creates a Decision with the allowed field set consistently
// from the effect. ruleIndex is the declaration position of the winning
// rule, or -1 when no rule matched.
func NewDecision(effect Effect, reason, ruleName string, ruleIndex int) Decision {
	return Decision{
		allowed:   effect == EffectAllow,
		Effect:    effect,
		Reason:    reason,
		RuleName:  ruleName,
		RuleIndex: ruleIndex,
	}
}

// IsAllowed returns whether the decision grants the operation.
func (d Decision) IsAllowed() bool {
	return d.allowed
}

// Validate checks that the Decision invariant holds: allowed must be
// consistent with Effect. Called at evaluator return boundaries.
func (d Decision) Validate() error {
	if d.allowed != (d.Effect == EffectAllow) {
		return fmt.Errorf(
			"decision invariant violated: allowed=%v but effect=%s",
			d.allowed, d.Effect,
		)
	}
	return nil
}
