// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"github.com/gatewarden/gatewarden/internal/principal"
)

// Compiler turns a Principal into an Ability using a rule table. The zero
// cost of construction and the absence of I/O mean hosts build a fresh
// Ability per request or render cycle and discard it afterwards.
type Compiler struct {
	table    Table
	observer Observer
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithTable replaces the default rule table, typically with one loaded
// from a reviewed policy file.
func WithTable(t Table) CompilerOption {
	return func(c *Compiler) {
		if t != nil {
			c.table = t
		}
	}
}

// WithObserver installs a hook invoked on gate and deny decisions. The
// engine stays pure; the observer is the host-injected diagnostic surface.
func WithObserver(o Observer) CompilerOption {
	return func(c *Compiler) {
		c.observer = o
	}
}

// NewCompiler creates a Compiler over the default rule table.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{table: DefaultTable()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile produces the ordered rule list for a Principal. It never fails:
// gated principals, unauthorized roles, and roles missing from the table
// all compile to the single-rule universal deny.
func (c *Compiler) Compile(p principal.Principal) *Ability {
	if p.Gated() || p.Role == principal.RoleUnauthorized {
		return &Ability{
			principal: p,
			rules:     []Rule{denyAllRule()},
			gated:     true,
			observer:  c.observer,
		}
	}

	templates, ok := c.table[p.Role]
	if !ok {
		// A canonical role without a table entry is a configuration gap;
		// fail closed rather than guess.
		return &Ability{
			principal: p,
			rules:     []Rule{denyAllRule()},
			gated:     true,
			observer:  c.observer,
		}
	}

	rules := make([]Rule, 0, len(templates)+1)
	for _, tmpl := range templates {
		if !tmpl.appliesTo(p.Segment) {
			continue
		}
		rules = append(rules, tmpl.instantiate(p))
	}

	if p.Segment != principal.SegmentInternal {
		rules = append(rules, denyFlagRule())
	}

	return &Ability{
		principal: p,
		rules:     rules,
		observer:  c.observer,
	}
}

// appliesTo reports whether the template is valid for the given segment.
func (t RuleTemplate) appliesTo(segment principal.Segment) bool {
	if len(t.Segments) == 0 {
		return true
	}
	for _, s := range t.Segments {
		if s == segment {
			return true
		}
	}
	return false
}

// instantiate produces the concrete rule for a principal. Org scoping
// attaches whenever the principal is a partner or carries an organization
// id: partners are org-scoped by definition (an absent id fails closed on
// instance checks), and internal staff assigned to an organization are
// scoped to it.
func (t RuleTemplate) instantiate(p principal.Principal) Rule {
	rule := Rule{
		Name:     t.Name,
		Effect:   t.Effect,
		Actions:  t.Actions,
		Subjects: t.Subjects,
	}
	if t.OrgScoped && (p.Segment == principal.SegmentPartner || p.OrganizationID != "") {
		rule.Condition = Condition{ConditionOrganizationID: p.OrganizationID}
	}
	return rule
}
