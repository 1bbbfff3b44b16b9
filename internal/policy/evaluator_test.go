// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/vocab"
)

func allowRule(name string, actions []vocab.Action, subjects []vocab.Subject) Rule {
	return Rule{Name: name, Effect: RuleAllow, Actions: actions, Subjects: subjects}
}

func denyRule(name string, actions []vocab.Action, subjects []vocab.Subject) Rule {
	return Rule{Name: name, Effect: RuleDeny, Actions: actions, Subjects: subjects}
}

func TestDecide_DefaultDeny(t *testing.T) {
	decision := Decide(nil, vocab.ActionRead, vocab.SubjectContent, nil)

	assert.False(t, decision.IsAllowed())
	assert.Equal(t, EffectDefaultDeny, decision.Effect)
	assert.Equal(t, ReasonNoMatchingRule, decision.Reason)
	assert.Equal(t, -1, decision.RuleIndex)
	assert.NoError(t, decision.Validate())
}

func TestDecide_NoMatchingRuleDenies(t *testing.T) {
	rules := []Rule{
		allowRule("r", []vocab.Action{vocab.ActionRead}, []vocab.Subject{vocab.SubjectContent}),
	}

	decision := Decide(rules, vocab.ActionDelete, vocab.SubjectContent, nil)
	assert.False(t, decision.IsAllowed())
	assert.Equal(t, EffectDefaultDeny, decision.Effect)

	decision = Decide(rules, vocab.ActionRead, vocab.SubjectService, nil)
	assert.False(t, decision.IsAllowed())
}

func TestDecide_ManageImpliesAllActions(t *testing.T) {
	rules := []Rule{
		allowRule("manage-content", []vocab.Action{vocab.ActionManage}, []vocab.Subject{vocab.SubjectContent}),
	}

	for _, action := range vocab.Actions() {
		decision := Decide(rules, action, vocab.SubjectContent, nil)
		assert.True(t, decision.IsAllowed(), "action %q should be implied by manage", action)
	}

	// manage on Content says nothing about other subjects.
	decision := Decide(rules, vocab.ActionRead, vocab.SubjectService, nil)
	assert.False(t, decision.IsAllowed())
}

func TestDecide_ManageDenyImpliesAllActions(t *testing.T) {
	rules := []Rule{
		allowRule("grant", []vocab.Action{vocab.ActionRead}, []vocab.Subject{vocab.SubjectContent}),
		denyRule("revoke", []vocab.Action{vocab.ActionManage}, []vocab.Subject{vocab.SubjectContent}),
	}

	decision := Decide(rules, vocab.ActionRead, vocab.SubjectContent, nil)
	assert.False(t, decision.IsAllowed())
	assert.Equal(t, EffectDeny, decision.Effect)
}

func TestDecide_WildcardSubjectMatchesEveryConcrete(t *testing.T) {
	rules := []Rule{
		allowRule("read-all", []vocab.Action{vocab.ActionRead}, []vocab.Subject{vocab.SubjectAll}),
	}

	for _, subject := range vocab.Subjects() {
		decision := Decide(rules, vocab.ActionRead, subject, nil)
		assert.True(t, decision.IsAllowed(), "subject %q should match wildcard", subject)
	}
}

func TestDecide_NarrowSubjectDoesNotMatchWildcardQuery(t *testing.T) {
	rules := []Rule{
		allowRule("read-content", []vocab.Action{vocab.ActionRead}, []vocab.Subject{vocab.SubjectContent}),
	}

	decision := Decide(rules, vocab.ActionRead, vocab.SubjectAll, nil)
	assert.False(t, decision.IsAllowed())
}

func TestDecide_LaterRuleWins(t *testing.T) {
	grant := allowRule("grant", []vocab.Action{vocab.ActionPublish}, []vocab.Subject{vocab.SubjectContent})
	revoke := denyRule("revoke", []vocab.Action{vocab.ActionPublish}, []vocab.Subject{vocab.SubjectContent})

	decision := Decide([]Rule{grant, revoke}, vocab.ActionPublish, vocab.SubjectContent, nil)
	require.False(t, decision.IsAllowed())
	assert.Equal(t, "revoke", decision.RuleName)
	assert.Equal(t, 1, decision.RuleIndex)

	// Reversing declaration order flips the verdict.
	decision = Decide([]Rule{revoke, grant}, vocab.ActionPublish, vocab.SubjectContent, nil)
	require.True(t, decision.IsAllowed())
	assert.Equal(t, "grant", decision.RuleName)
}

func TestDecide_NarrowOverrideAfterBroadGrant(t *testing.T) {
	rules := []Rule{
		allowRule("broad", []vocab.Action{vocab.ActionManage}, []vocab.Subject{vocab.SubjectAll}),
		denyRule("narrow", []vocab.Action{vocab.ActionPublish}, []vocab.Subject{vocab.SubjectContent}),
	}

	assert.False(t, Decide(rules, vocab.ActionPublish, vocab.SubjectContent, nil).IsAllowed())
	assert.True(t, Decide(rules, vocab.ActionPublish, vocab.SubjectService, nil).IsAllowed())
	assert.True(t, Decide(rules, vocab.ActionDelete, vocab.SubjectContent, nil).IsAllowed())
}

func TestDecide_ConditionIgnoredForTypeLevelQuery(t *testing.T) {
	rules := []Rule{
		{
			Name:      "scoped",
			Effect:    RuleAllow,
			Actions:   []vocab.Action{vocab.ActionCreate},
			Subjects:  []vocab.Subject{vocab.SubjectContent},
			Condition: Condition{ConditionOrganizationID: "org-1"},
		},
	}

	decision := Decide(rules, vocab.ActionCreate, vocab.SubjectContent, nil)
	assert.True(t, decision.IsAllowed(), "type-level query ignores conditions")
}

func TestDecide_ConditionEnforcedForInstanceQuery(t *testing.T) {
	rules := []Rule{
		{
			Name:      "scoped",
			Effect:    RuleAllow,
			Actions:   []vocab.Action{vocab.ActionCreate},
			Subjects:  []vocab.Subject{vocab.SubjectContent},
			Condition: Condition{ConditionOrganizationID: "org-1"},
		},
	}

	assert.True(t, Decide(rules, vocab.ActionCreate, vocab.SubjectContent,
		Instance{"organization_id": "org-1"}).IsAllowed())

	assert.False(t, Decide(rules, vocab.ActionCreate, vocab.SubjectContent,
		Instance{"organization_id": "org-2"}).IsAllowed())

	// Instance missing the conditioned field fails the match, strictly.
	assert.False(t, Decide(rules, vocab.ActionCreate, vocab.SubjectContent,
		Instance{"owner": "u-1"}).IsAllowed())

	// An empty instance is still an instance-level query.
	assert.False(t, Decide(rules, vocab.ActionCreate, vocab.SubjectContent,
		Instance{}).IsAllowed())
}

func TestDecide_UnsatisfiedConditionSkipsRuleScanContinues(t *testing.T) {
	rules := []Rule{
		allowRule("fallback", []vocab.Action{vocab.ActionRead}, []vocab.Subject{vocab.SubjectAll}),
		{
			Name:      "scoped",
			Effect:    RuleDeny,
			Actions:   []vocab.Action{vocab.ActionRead},
			Subjects:  []vocab.Subject{vocab.SubjectContent},
			Condition: Condition{ConditionOrganizationID: "org-1"},
		},
	}

	// The later deny only matches org-1 instances; other instances fall
	// through to the earlier grant instead of being denied outright.
	assert.False(t, Decide(rules, vocab.ActionRead, vocab.SubjectContent,
		Instance{"organization_id": "org-1"}).IsAllowed())
	assert.True(t, Decide(rules, vocab.ActionRead, vocab.SubjectContent,
		Instance{"organization_id": "org-9"}).IsAllowed())
}

func TestDecide_UnknownVocabularyFailsClosed(t *testing.T) {
	rules := []Rule{
		allowRule("everything", []vocab.Action{vocab.ActionManage}, []vocab.Subject{vocab.SubjectAll}),
	}

	decision := Decide(rules, vocab.Action("grant"), vocab.SubjectContent, nil)
	assert.False(t, decision.IsAllowed())
	assert.Equal(t, EffectDeny, decision.Effect)
	assert.Equal(t, ReasonUnknownAction, decision.Reason)

	decision = Decide(rules, vocab.ActionRead, vocab.Subject("Widget"), nil)
	assert.False(t, decision.IsAllowed())
	assert.Equal(t, ReasonUnknownSubject, decision.Reason)
}

func TestRuleEffect_ToEffect(t *testing.T) {
	assert.Equal(t, EffectAllow, RuleAllow.ToEffect())
	assert.Equal(t, EffectDeny, RuleDeny.ToEffect())
	assert.Equal(t, EffectDefaultDeny, RuleEffect("permit").ToEffect())
}

func TestDecision_ValidateCatchesTampering(t *testing.T) {
	d := NewDecision(EffectAllow, ReasonRuleMatched, "r", 0)
	require.NoError(t, d.Validate())

	d.Effect = EffectDeny
	assert.Error(t, d.Validate())
}
