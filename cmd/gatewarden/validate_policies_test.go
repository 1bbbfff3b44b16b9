// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/pkg/errutil"
)

func TestValidatePolicies_BuiltIn(t *testing.T) {
	assert.NoError(t, runValidatePolicies(""))
}

func TestValidatePolicies_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	content := `version: 1
roles:
  admin:
    - name: base:admin-all
      effect: allow
      actions: [manage]
      subjects: [all]
  viewer:
    - name: base:viewer-read
      effect: allow
      actions: [read]
      subjects: [Content, Service, Business]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	assert.NoError(t, runValidatePolicies(path))
}

func TestValidatePolicies_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	content := `version: 1
roles:
  viewer:
    - name: bad:rule
      effect: allow
      actions: [grant]
      subjects: [all]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	err := runValidatePolicies(path)
	require.Error(t, err)
}

func TestValidatePolicies_MissingFile(t *testing.T) {
	err := runValidatePolicies(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "POLICY_FILE_READ_FAILED")
}

func TestValidatePoliciesCommand_TooManyArgs(t *testing.T) {
	cmd := NewValidatePoliciesCmd()
	cmd.SetArgs([]string{"a.yaml", "b.yaml"})
	assert.Error(t, cmd.Execute())
}
