// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// PolicyFile is the on-disk rule table: an explicit, reviewable document of
// every role × segment cell, loaded at startup to override the embedded
// defaults. The file is deliberately declarative — no expressions, no
// precedence numbers — so that rule order in the document is the compiled
// rule order.
type PolicyFile struct {
	Version int                   `yaml:"version" json:"version"`
	Roles   map[string][]FileRule `yaml:"roles" json:"roles"`
}

// FileRule is one rule template cell in a policy file.
type FileRule struct {
	Name      string   `yaml:"name" json:"name"`
	Effect    string   `yaml:"effect" json:"effect"`
	Actions   []string `yaml:"actions" json:"actions"`
	Subjects  []string `yaml:"subjects" json:"subjects"`
	OrgScoped bool     `yaml:"org_scoped,omitempty" json:"org_scoped,omitempty"`
	Segments  []string `yaml:"segments,omitempty" json:"segments,omitempty"`
}

// supportedFileVersion is the only policy file version this build accepts.
const supportedFileVersion = 1

// ParsePolicyFile parses and validates a YAML policy file into a Table.
// The document is first checked against the generated JSON schema, then
// against the canonical vocabulary, so a typo in an action name is a load
// failure rather than a silently dead rule.
func ParsePolicyFile(data []byte) (Table, error) {
	if len(data) == 0 {
		return nil, oops.Code("POLICY_FILE_EMPTY").Errorf("policy file is empty")
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, oops.Code("POLICY_FILE_INVALID").Wrapf(err, "invalid YAML")
	}

	return file.ToTable()
}

// ToTable converts a parsed PolicyFile into a rule Table, validating every
// referenced role, action, subject, and segment.
func (f *PolicyFile) ToTable() (Table, error) {
	if f.Version != supportedFileVersion {
		return nil, oops.Code("POLICY_FILE_VERSION").
			With("version", f.Version).
			Errorf("unsupported policy file version %d (want %d)", f.Version, supportedFileVersion)
	}
	if len(f.Roles) == 0 {
		return nil, oops.Code("POLICY_FILE_INVALID").Errorf("policy file declares no roles")
	}

	table := make(Table, len(f.Roles))
	for roleName, fileRules := range f.Roles {
		role := principal.NormalizeRole(roleName)
		if role == principal.RoleUnauthorized || string(role) != roleName {
			return nil, oops.Code("POLICY_FILE_INVALID").
				With("role", roleName).
				Errorf("role %q is not a canonical role", roleName)
		}

		templates := make([]RuleTemplate, 0, len(fileRules))
		for _, fr := range fileRules {
			tmpl, err := fr.toTemplate(roleName)
			if err != nil {
				return nil, err
			}
			templates = append(templates, tmpl)
		}
		table[role] = templates
	}

	return table, nil
}

func (fr FileRule) toTemplate(roleName string) (RuleTemplate, error) {
	errCtx := oops.Code("POLICY_FILE_INVALID").With("role", roleName).With("rule", fr.Name)

	if fr.Name == "" {
		return RuleTemplate{}, errCtx.Errorf("rule name is required")
	}

	effect := RuleEffect(fr.Effect)
	if effect != RuleAllow && effect != RuleDeny {
		return RuleTemplate{}, errCtx.With("effect", fr.Effect).
			Errorf("effect must be %q or %q", RuleAllow, RuleDeny)
	}

	if len(fr.Actions) == 0 || len(fr.Subjects) == 0 {
		return RuleTemplate{}, errCtx.Errorf("rule must declare at least one action and one subject")
	}

	actions := make([]vocab.Action, 0, len(fr.Actions))
	for _, raw := range fr.Actions {
		a := vocab.Action(raw)
		if !vocab.IsAction(a) {
			return RuleTemplate{}, errCtx.With("action", raw).Errorf("unknown action %q", raw)
		}
		actions = append(actions, a)
	}

	subjects := make([]vocab.Subject, 0, len(fr.Subjects))
	for _, raw := range fr.Subjects {
		s := vocab.Subject(raw)
		if !vocab.IsSubject(s) {
			return RuleTemplate{}, errCtx.With("subject", raw).Errorf("unknown subject %q", raw)
		}
		subjects = append(subjects, s)
	}

	segments := make([]principal.Segment, 0, len(fr.Segments))
	for _, raw := range fr.Segments {
		seg := principal.Segment(raw)
		if seg != principal.SegmentInternal && seg != principal.SegmentPartner {
			return RuleTemplate{}, errCtx.With("segment", raw).
				Errorf("segment %q is not an allowed segment", raw)
		}
		segments = append(segments, seg)
	}

	return RuleTemplate{
		Name:      fr.Name,
		Effect:    effect,
		Actions:   actions,
		Subjects:  subjects,
		OrgScoped: fr.OrgScoped,
		Segments:  segments,
	}, nil
}
