// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

// Package vocab defines the canonical action and subject vocabulary shared
// by every authorization caller. The policy compiler and the enforcement
// layer both import this package so that the two sides can never disagree
// on what a verb or noun means.
package vocab

// Action is a canonical authorization verb.
type Action string

// Canonical actions. ActionManage is a super-action: a rule granting or
// denying manage on a subject implicitly covers every other action on that
// subject. The evaluator treats it as a universal quantifier, not as an
// ordinary member.
const (
	ActionManage  Action = "manage"
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionPublish Action = "publish"
	ActionArchive Action = "archive"
	ActionFlag    Action = "flag"
)

// String returns the underlying string value.
func (a Action) String() string {
	return string(a)
}

// Subject is a canonical domain noun.
type Subject string

// Canonical subjects. SubjectAll is the wildcard: it matches every concrete
// subject during evaluation and is never stored as a plain enum member.
const (
	SubjectAll          Subject = "all"
	SubjectContent      Subject = "Content"
	SubjectService      Subject = "Service"
	SubjectBusiness     Subject = "Business"
	SubjectZone         Subject = "Zone"
	SubjectGrowthArea   Subject = "GrowthArea"
	SubjectUser         Subject = "User"
	SubjectOrganization Subject = "Organization"
)

// String returns the underlying string value.
func (s Subject) String() string {
	return string(s)
}

var actions = map[Action]struct{}{
	ActionManage:  {},
	ActionCreate:  {},
	ActionRead:    {},
	ActionUpdate:  {},
	ActionDelete:  {},
	ActionApprove: {},
	ActionPublish: {},
	ActionArchive: {},
	ActionFlag:    {},
}

var subjects = map[Subject]struct{}{
	SubjectAll:          {},
	SubjectContent:      {},
	SubjectService:      {},
	SubjectBusiness:     {},
	SubjectZone:         {},
	SubjectGrowthArea:   {},
	SubjectUser:         {},
	SubjectOrganization: {},
}

// IsAction reports whether a is a member of the canonical action set.
func IsAction(a Action) bool {
	_, ok := actions[a]
	return ok
}

// IsSubject reports whether s is a member of the canonical subject set
// (the wildcard "all" counts as a member).
func IsSubject(s Subject) bool {
	_, ok := subjects[s]
	return ok
}

// Actions returns the canonical actions in declaration order.
func Actions() []Action {
	return []Action{
		ActionManage,
		ActionCreate,
		ActionRead,
		ActionUpdate,
		ActionDelete,
		ActionApprove,
		ActionPublish,
		ActionArchive,
		ActionFlag,
	}
}

// Subjects returns the concrete subjects (the wildcard excluded) in
// declaration order.
func Subjects() []Subject {
	return []Subject{
		SubjectContent,
		SubjectService,
		SubjectBusiness,
		SubjectZone,
		SubjectGrowthArea,
		SubjectUser,
		SubjectOrganization,
	}
}

// ContentSubjects returns the five content-bearing subjects that carry
// organization scoping for partner principals.
func ContentSubjects() []Subject {
	return []Subject{
		SubjectContent,
		SubjectService,
		SubjectBusiness,
		SubjectZone,
		SubjectGrowthArea,
	}
}
