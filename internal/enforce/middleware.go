// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package enforce

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

// ClaimsFunc extracts raw identity claims from a request. Returning false
// means the request carries no usable identity and gets a 401.
type ClaimsFunc func(r *http.Request) (map[string]any, bool)

// InstanceFunc extracts the instance attributes for an instance-level check
// from a request, typically from path or query parameters. Returning nil
// downgrades the check to type-level.
type InstanceFunc func(r *http.Request) policy.Instance

// requiredPermission names the permission a 403 response was denied for.
type requiredPermission struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

// forbiddenBody is the JSON contract for 403 responses. It names the
// missing permission but never the rules that produced the denial.
type forbiddenBody struct {
	Error    string             `json:"error"`
	Reason   string             `json:"reason"`
	Message  string             `json:"message"`
	Required requiredPermission `json:"required"`
}

// Authenticator compiles an ability for each request and attaches it to
// the request context.
type Authenticator struct {
	compiler *policy.Compiler
	claims   ClaimsFunc
}

// NewAuthenticator creates the middleware that turns request claims into a
// compiled ability.
func NewAuthenticator(compiler *policy.Compiler, claims ClaimsFunc) *Authenticator {
	return &Authenticator{compiler: compiler, claims: claims}
}

// Handler wraps next so every downstream handler can read the ability from
// the request context. Requests without usable claims are rejected with
// 401 before any permission check runs.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := a.claims(r)
		if !ok {
			unauthorized(w, "missing credentials")
			return
		}

		p := principal.FromClaims(claims)
		ability := a.compiler.Compile(p)

		ctx := WithPrincipal(WithAbility(r.Context(), ability), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission returns middleware enforcing a type-level permission.
// Missing ability means the authentication layer never ran: that is a 401,
// not a 403, so clients can distinguish "log in" from "ask an admin".
func RequirePermission(action vocab.Action, subject vocab.Subject) func(http.Handler) http.Handler {
	return requireWith(action, subject, nil)
}

// RequireInstancePermission returns middleware enforcing an instance-level
// permission, with the instance attributes pulled from the request by
// extract.
func RequireInstancePermission(action vocab.Action, subject vocab.Subject, extract InstanceFunc) func(http.Handler) http.Handler {
	return requireWith(action, subject, extract)
}

func requireWith(action vocab.Action, subject vocab.Subject, extract InstanceFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverInternal(w, r)

			ability, ok := AbilityFrom(r.Context())
			if !ok {
				unauthorized(w, "authentication required")
				return
			}

			var inst policy.Instance
			if extract != nil {
				inst = extract(r)
			}

			decision := ability.Decide(action, subject, inst)
			if !decision.IsAllowed() {
				forbidden(w, action, subject)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// recoverInternal converts a panic during an authorization check into a 500
// that reveals nothing about the rule set.
func recoverInternal(w http.ResponseWriter, r *http.Request) {
	if rec := recover(); rec != nil {
		slog.Error("authorization check panicked",
			"panic", rec,
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": "authorization check failed",
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

func forbidden(w http.ResponseWriter, action vocab.Action, subject vocab.Subject) {
	writeJSON(w, http.StatusForbidden, forbiddenBody{
		Error:   "forbidden",
		Reason:  "insufficient_permissions",
		Message: action.String() + " " + subject.String(),
		Required: requiredPermission{
			Action:  action.String(),
			Subject: subject.String(),
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}
