// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// checkFlags holds the identity and permission for a one-off check.
type checkFlags struct {
	role       string
	segment    string
	orgID      string
	userID     string
	action     string
	subject    string
	instOrgID  string
	policyFile string
}

// NewCheckCmd creates the check subcommand.
func NewCheckCmd() *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate one permission without starting the server",
		Long: `Evaluate a single permission for the given identity and print the
decision. Exits 0 when allowed, non-zero when denied, so it slots into
shell scripts and CI checks:

  gatewarden check --role editor --segment internal --action update --subject Content`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.role, "role", "", "caller role")
	cmd.Flags().StringVar(&flags.segment, "segment", "", "caller segment")
	cmd.Flags().StringVar(&flags.orgID, "org", "", "caller organization id")
	cmd.Flags().StringVar(&flags.userID, "user", "", "caller user id")
	cmd.Flags().StringVar(&flags.action, "action", "", "action to check")
	cmd.Flags().StringVar(&flags.subject, "subject", "", "subject to check")
	cmd.Flags().StringVar(&flags.instOrgID, "instance-org", "", "organization id of the target record (instance-level check)")
	cmd.Flags().StringVar(&flags.policyFile, "policy-file", "", "policy file overriding the built-in table")

	return cmd
}

func runCheck(cmd *cobra.Command, flags *checkFlags) error {
	action := vocab.Action(flags.action)
	if !vocab.IsAction(action) {
		return oops.Code("CHECK_INVALID").With("action", flags.action).
			Errorf("unknown action %q", flags.action)
	}
	subject := vocab.Subject(flags.subject)
	if !vocab.IsSubject(subject) {
		return oops.Code("CHECK_INVALID").With("subject", flags.subject).
			Errorf("unknown subject %q", flags.subject)
	}

	table, err := loadTable(flags.policyFile)
	if err != nil {
		return err
	}

	p := principal.FromClaims(map[string]any{
		"role":            flags.role,
		"segment":         flags.segment,
		"organization_id": flags.orgID,
		"user_id":         flags.userID,
	})

	var inst policy.Instance
	if flags.instOrgID != "" {
		inst = policy.Instance{policy.ConditionOrganizationID: flags.instOrgID}
	}

	compiler := policy.NewCompiler(policy.WithTable(table))
	decision := compiler.Compile(p).Decide(action, subject, inst)

	cmd.Printf("effect: %s\n", decision.Effect)
	cmd.Printf("reason: %s\n", decision.Reason)
	if decision.RuleName != "" {
		cmd.Printf("rule: %s\n", decision.RuleName)
	}

	if !decision.IsAllowed() {
		return fmt.Errorf("denied: %s %s", action, subject)
	}
	return nil
}
