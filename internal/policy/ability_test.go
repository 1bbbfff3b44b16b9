// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

func TestSubjectPermissions(t *testing.T) {
	ability := compileClaims(t, "editor", "internal", "")

	perms := ability.SubjectPermissions(vocab.SubjectContent)
	assert.Equal(t, []vocab.Action{
		vocab.ActionCreate,
		vocab.ActionRead,
		vocab.ActionUpdate,
		vocab.ActionFlag,
	}, perms)

	assert.Empty(t, ability.SubjectPermissions(vocab.SubjectUser))
}

func TestSubjectPermissions_Admin(t *testing.T) {
	ability := compileClaims(t, "admin", "internal", "")

	perms := ability.SubjectPermissions(vocab.SubjectContent)
	assert.Equal(t, vocab.Actions(), perms)
}

func TestCanAccessModule(t *testing.T) {
	editor := compileClaims(t, "editor", "internal", "")

	assert.True(t, editor.CanAccessModule("content"))
	assert.True(t, editor.CanAccessModule("services"))
	assert.True(t, editor.CanAccessModule("growth-areas"))
	assert.False(t, editor.CanAccessModule("users"))
	assert.False(t, editor.CanAccessModule("organizations"))

	// Unknown module names deny, they are not an error.
	assert.False(t, editor.CanAccessModule("billing"))
	assert.False(t, editor.CanAccessModule(""))

	viewer := compileClaims(t, "viewer", "internal", "")
	assert.True(t, viewer.CanAccessModule("users"))
	assert.True(t, viewer.CanAccessModule("organizations"))
}

func TestAbility_RulesReturnsCopy(t *testing.T) {
	ability := compileClaims(t, "viewer", "internal", "")

	rules := ability.Rules()
	rules[0] = Rule{Name: "tampered", Effect: RuleAllow,
		Actions:  []vocab.Action{vocab.ActionManage},
		Subjects: []vocab.Subject{vocab.SubjectAll}}

	assert.NotEqual(t, "tampered", ability.Rules()[0].Name)
}

func TestAbility_Principal(t *testing.T) {
	p := principal.FromClaims(map[string]any{"role": "admin", "segment": "internal"})
	ability := NewCompiler().Compile(p)

	assert.Equal(t, p, ability.Principal())
}
