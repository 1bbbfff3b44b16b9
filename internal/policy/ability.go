// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"time"

	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// Observer receives gate and deny decisions for diagnostics. Implementations
// must be non-blocking; the engine calls them synchronously.
type Observer interface {
	ObserveDecision(e DecisionEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(e DecisionEvent)

// ObserveDecision calls f(e).
func (f ObserverFunc) ObserveDecision(e DecisionEvent) {
	f(e)
}

// DecisionEvent is the payload handed to an Observer for one evaluated
// query.
type DecisionEvent struct {
	Principal principal.Principal
	Action    vocab.Action
	Subject   vocab.Subject
	Instance  Instance
	Decision  Decision
	Duration  time.Duration
}

// Ability is the ordered, immutable rule list compiled for one Principal.
// It is scoped to a single request or render cycle: build, query, discard.
// Concurrent queries against one Ability are safe because nothing mutates
// after compilation.
type Ability struct {
	principal principal.Principal
	rules     []Rule
	gated     bool
	observer  Observer
}

// Principal returns the Principal this Ability was compiled for.
func (a *Ability) Principal() principal.Principal {
	return a.principal
}

// Rules returns a copy of the compiled rule list in declaration order.
func (a *Ability) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	copy(out, a.rules)
	return out
}

// Gated reports whether this Ability is the universal deny compiled for a
// gated or unauthorized principal.
func (a *Ability) Gated() bool {
	return a.gated
}

// Decide evaluates a query, optionally against an instance, and reports
// the full decision. Gate and deny outcomes are forwarded to the observer
// and recorded in metrics.
func (a *Ability) Decide(action vocab.Action, subject vocab.Subject, inst Instance) Decision {
	start := time.Now()

	var decision Decision
	if a.gated {
		decision = NewDecision(EffectDeny, ReasonPrincipalGated, a.rules[0].Name, 0)
	} else {
		decision = Decide(a.rules, action, subject, inst)
	}

	elapsed := time.Since(start)
	recordDecisionMetrics(elapsed, decision.Effect, a.gated)

	if a.observer != nil && !decision.IsAllowed() {
		a.observer.ObserveDecision(DecisionEvent{
			Principal: a.principal,
			Action:    action,
			Subject:   subject,
			Instance:  inst,
			Decision:  decision,
			Duration:  elapsed,
		})
	}

	return decision
}

// Can answers a type-level query: could the principal possibly perform the
// action on some record of the subject, ignoring per-record scoping.
func (a *Ability) Can(action vocab.Action, subject vocab.Subject) bool {
	return a.Decide(action, subject, nil).IsAllowed()
}

// CanInstance answers an instance-level query against a concrete record.
func (a *Ability) CanInstance(action vocab.Action, subject vocab.Subject, inst Instance) bool {
	return a.Decide(action, subject, inst).IsAllowed()
}

// CanCreate reports whether create is permitted on the subject.
func (a *Ability) CanCreate(subject vocab.Subject) bool {
	return a.Can(vocab.ActionCreate, subject)
}

// CanRead reports whether read is permitted on the subject.
func (a *Ability) CanRead(subject vocab.Subject) bool {
	return a.Can(vocab.ActionRead, subject)
}

// CanUpdate reports whether update is permitted on the subject.
func (a *Ability) CanUpdate(subject vocab.Subject) bool {
	return a.Can(vocab.ActionUpdate, subject)
}

// CanDelete reports whether delete is permitted on the subject.
func (a *Ability) CanDelete(subject vocab.Subject) bool {
	return a.Can(vocab.ActionDelete, subject)
}

// CanApprove reports whether approve is permitted on the subject.
func (a *Ability) CanApprove(subject vocab.Subject) bool {
	return a.Can(vocab.ActionApprove, subject)
}

// CanManage reports whether the full manage super-action is permitted on
// the subject.
func (a *Ability) CanManage(subject vocab.Subject) bool {
	return a.Can(vocab.ActionManage, subject)
}

// SubjectPermissions returns every canonical action that currently passes a
// type-level check for the subject, in vocabulary declaration order.
func (a *Ability) SubjectPermissions(subject vocab.Subject) []vocab.Action {
	var granted []vocab.Action
	for _, action := range vocab.Actions() {
		if a.Can(action, subject) {
			granted = append(granted, action)
		}
	}
	return granted
}

// moduleSubjects maps dashboard module names onto the subject governing
// access to them. Unknown module names deny.
var moduleSubjects = map[string]vocab.Subject{
	"content":       vocab.SubjectContent,
	"services":      vocab.SubjectService,
	"businesses":    vocab.SubjectBusiness,
	"zones":         vocab.SubjectZone,
	"growth-areas":  vocab.SubjectGrowthArea,
	"users":         vocab.SubjectUser,
	"organizations": vocab.SubjectOrganization,
}

// CanAccessModule reports whether the principal may see a dashboard module
// at all, defined as read access on the module's governing subject.
func (a *Ability) CanAccessModule(name string) bool {
	subject, ok := moduleSubjects[name]
	if !ok {
		return false
	}
	return a.CanRead(subject)
}
