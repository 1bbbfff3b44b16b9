// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// RuleTemplate is one declarative entry of the rule table. Templates are
// instantiated per principal: OrgScoped templates pick up an
// organization_id condition for partner principals and stay unconditioned
// for internal principals. Segments restricts a template to specific
// segments; empty means every allowed segment.
type RuleTemplate struct {
	Name      string
	Effect    RuleEffect
	Actions   []vocab.Action
	Subjects  []vocab.Subject
	OrgScoped bool
	Segments  []principal.Segment
}

// Table is an ordered rule-template list per role. Declaration order is the
// compiled rule order, which the evaluator's last-match-wins scan depends
// on: a template meant to override an earlier grant must be declared after
// it.
type Table map[principal.Role][]RuleTemplate

// DefaultTable returns the reviewed role × segment rule table. Every cell
// here is an explicit decision; nothing is inferred at runtime beyond the
// template expansion in Compile.
//
// Table review notes:
//   - Partner admins keep publish on Service through the manage-all grant
//     but are denied publish and delete on Content. The Service/Content
//     publish asymmetry is a deliberate product decision for partner
//     syndication, recorded here so it cannot be reintroduced by accident
//     in a second hand-written builder.
//   - Editors are granted delete in the base CRUD block and stripped of it
//     by the restriction layer; the grant-then-restrict shape keeps the
//     base block identical across editor-like roles.
//   - Flagging is an internal moderation tool: internal non-viewer roles
//     get an explicit grant, every non-internal principal gets a trailing
//     deny regardless of role.
func DefaultTable() Table {
	return Table{
		principal.RoleAdmin: {
			{
				Name:      "base:admin-manage-all",
				Effect:    RuleAllow,
				Actions:   []vocab.Action{vocab.ActionManage},
				Subjects:  []vocab.Subject{vocab.SubjectAll},
				OrgScoped: true,
			},
			{
				Name:     "override:partner-admin-no-content-publish",
				Effect:   RuleDeny,
				Actions:  []vocab.Action{vocab.ActionPublish},
				Subjects: []vocab.Subject{vocab.SubjectContent},
				Segments: []principal.Segment{principal.SegmentPartner},
			},
			{
				Name:     "override:partner-admin-no-content-delete",
				Effect:   RuleDeny,
				Actions:  []vocab.Action{vocab.ActionDelete},
				Subjects: []vocab.Subject{vocab.SubjectContent},
				Segments: []principal.Segment{principal.SegmentPartner},
			},
		},
		principal.RoleEditor: {
			{
				Name:      "base:editor-content-crud",
				Effect:    RuleAllow,
				Actions:   []vocab.Action{vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate, vocab.ActionDelete},
				Subjects:  vocab.ContentSubjects(),
				OrgScoped: true,
			},
			{
				Name:     "restrict:editor-no-approve-delete",
				Effect:   RuleDeny,
				Actions:  []vocab.Action{vocab.ActionApprove, vocab.ActionDelete},
				Subjects: []vocab.Subject{vocab.SubjectAll},
			},
			{
				Name:     "grant:internal-flag",
				Effect:   RuleAllow,
				Actions:  []vocab.Action{vocab.ActionFlag},
				Subjects: vocab.ContentSubjects(),
				Segments: []principal.Segment{principal.SegmentInternal},
			},
		},
		principal.RoleApprover: {
			{
				Name:      "base:approver-content-review",
				Effect:    RuleAllow,
				Actions:   []vocab.Action{vocab.ActionCreate, vocab.ActionRead, vocab.ActionUpdate, vocab.ActionApprove, vocab.ActionPublish},
				Subjects:  vocab.ContentSubjects(),
				OrgScoped: true,
			},
			{
				Name:     "restrict:approver-no-delete",
				Effect:   RuleDeny,
				Actions:  []vocab.Action{vocab.ActionDelete},
				Subjects: []vocab.Subject{vocab.SubjectAll},
			},
			{
				Name:     "grant:internal-flag",
				Effect:   RuleAllow,
				Actions:  []vocab.Action{vocab.ActionFlag},
				Subjects: vocab.ContentSubjects(),
				Segments: []principal.Segment{principal.SegmentInternal},
			},
		},
		principal.RoleViewer: {
			{
				Name:      "base:viewer-read-all",
				Effect:    RuleAllow,
				Actions:   []vocab.Action{vocab.ActionRead},
				Subjects:  []vocab.Subject{vocab.SubjectAll},
				OrgScoped: true,
			},
			{
				Name:     "restrict:viewer-read-only",
				Effect:   RuleDeny,
				Actions:  []vocab.Action{vocab.ActionCreate, vocab.ActionUpdate, vocab.ActionDelete, vocab.ActionApprove, vocab.ActionPublish, vocab.ActionArchive},
				Subjects: []vocab.Subject{vocab.SubjectAll},
			},
		},
	}
}

// denyAllRule is the single rule compiled for gated or unauthorized
// principals. manage × all quantifies over every action/subject pair.
func denyAllRule() Rule {
	return Rule{
		Name:     "gate:deny-all",
		Effect:   RuleDeny,
		Actions:  []vocab.Action{vocab.ActionManage},
		Subjects: []vocab.Subject{vocab.SubjectAll},
	}
}

// denyFlagRule is appended last for every non-internal principal.
func denyFlagRule() Rule {
	return Rule{
		Name:     "segment:non-internal-no-flag",
		Effect:   RuleDeny,
		Actions:  []vocab.Action{vocab.ActionFlag},
		Subjects: []vocab.Subject{vocab.SubjectAll},
	}
}
