// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/samber/oops"

	"github.com/gatewarden/gatewarden/internal/enforce"
	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/principal"
	"github.com/gatewarden/gatewarden/internal/store"
	"github.com/gatewarden/gatewarden/internal/vocab"
	"github.com/gatewarden/gatewarden/pkg/errutil"
)

// loadTable returns the rule table for the service: the file at path when
// given, the embedded defaults otherwise.
func loadTable(path string) (policy.Table, error) {
	if path == "" {
		return policy.DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("POLICY_FILE_READ_FAILED").With("path", path).Wrap(err)
	}
	return policy.ParsePolicyFile(data)
}

// checkRequest is the body of POST /v1/check: the identity to evaluate and
// the permission to evaluate it against.
type checkRequest struct {
	Role           string          `json:"role"`
	Segment        string          `json:"segment"`
	OrganizationID string          `json:"organization_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Action         string          `json:"action"`
	Subject        string          `json:"subject"`
	Instance       policy.Instance `json:"instance,omitempty"`
}

// checkResponse reports the verdict for a check request.
type checkResponse struct {
	Allowed  bool   `json:"allowed"`
	Effect   string `json:"effect"`
	Reason   string `json:"reason"`
	RuleName string `json:"rule_name,omitempty"`
}

// defaultRouteMap maps the dashboard's API surface to the permissions it
// requires. The /api/ subtree answers 204 when the caller would be allowed
// through, so integrators can probe enforcement with plain curl.
func defaultRouteMap() (*enforce.RouteMap, error) {
	return enforce.NewRouteMap([]enforce.RouteRule{
		{Pattern: "GET /api/content", Action: vocab.ActionRead, Subject: vocab.SubjectContent},
		{Pattern: "GET /api/content/*", Action: vocab.ActionRead, Subject: vocab.SubjectContent},
		{Pattern: "POST /api/content", Action: vocab.ActionCreate, Subject: vocab.SubjectContent},
		{Pattern: "PUT /api/content/*", Action: vocab.ActionUpdate, Subject: vocab.SubjectContent},
		{Pattern: "DELETE /api/content/*", Action: vocab.ActionDelete, Subject: vocab.SubjectContent},
		{Pattern: "POST /api/content/*/approve", Action: vocab.ActionApprove, Subject: vocab.SubjectContent},
		{Pattern: "POST /api/content/*/publish", Action: vocab.ActionPublish, Subject: vocab.SubjectContent},
		{Pattern: "POST /api/content/*/archive", Action: vocab.ActionArchive, Subject: vocab.SubjectContent},
		{Pattern: "GET /api/services", Action: vocab.ActionRead, Subject: vocab.SubjectService},
		{Pattern: "POST /api/services", Action: vocab.ActionCreate, Subject: vocab.SubjectService},
		{Pattern: "PUT /api/services/*", Action: vocab.ActionUpdate, Subject: vocab.SubjectService},
		{Pattern: "GET /api/businesses", Action: vocab.ActionRead, Subject: vocab.SubjectBusiness},
		{Pattern: "PUT /api/businesses/*", Action: vocab.ActionUpdate, Subject: vocab.SubjectBusiness},
		{Pattern: "GET /api/zones", Action: vocab.ActionRead, Subject: vocab.SubjectZone},
		{Pattern: "GET /api/growth-areas", Action: vocab.ActionRead, Subject: vocab.SubjectGrowthArea},
		{Pattern: "GET /api/users", Action: vocab.ActionRead, Subject: vocab.SubjectUser},
		{Pattern: "DELETE /api/users/*", Action: vocab.ActionDelete, Subject: vocab.SubjectUser},
		{Pattern: "GET /api/organizations", Action: vocab.ActionRead, Subject: vocab.SubjectOrganization},
		{Pattern: "PUT /api/organizations/*", Action: vocab.ActionUpdate, Subject: vocab.SubjectOrganization},
	})
}

// apiHandler serves the decision API and the enforced decision-log routes.
type apiHandler struct {
	compiler *policy.Compiler
	repo     store.DecisionRepository
}

// newAPIHandler builds the service mux. The decision endpoints answer
// questions about an identity named in the request body; the decision-log
// endpoint is itself enforced, so only callers who may manage everything
// can read it.
func newAPIHandler(compiler *policy.Compiler, repo store.DecisionRepository, routes *enforce.RouteMap) http.Handler {
	h := &apiHandler{compiler: compiler, repo: repo}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", h.handleCheck)
	mux.HandleFunc("GET /v1/permissions", h.handlePermissions)
	mux.Handle("GET /v1/decisions",
		enforce.RequirePermission(vocab.ActionManage, vocab.SubjectAll)(
			http.HandlerFunc(h.handleDecisions)))

	if routes != nil {
		mux.Handle("/api/", routes.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))
	}

	return mux
}

func (h *apiHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "bad_request",
			"message": "invalid JSON body",
		})
		return
	}

	action := vocab.Action(req.Action)
	subject := vocab.Subject(req.Subject)
	if !vocab.IsAction(action) || !vocab.IsSubject(subject) {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "bad_request",
			"message": "unknown action or subject",
		})
		return
	}

	p := principal.FromClaims(map[string]any{
		"role":            req.Role,
		"segment":         req.Segment,
		"organization_id": req.OrganizationID,
		"user_id":         req.UserID,
	})
	ability := h.compiler.Compile(p)
	decision := ability.Decide(action, subject, req.Instance)

	respondJSON(w, http.StatusOK, checkResponse{
		Allowed:  decision.IsAllowed(),
		Effect:   decision.Effect.String(),
		Reason:   decision.Reason,
		RuleName: decision.RuleName,
	})
}

// handlePermissions lists what the calling identity can do. With a subject
// query parameter the response is that subject's allowed actions; without
// one it is the full per-subject map.
func (h *apiHandler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	ability, ok := enforce.AbilityFrom(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   "unauthorized",
			"message": "authentication required",
		})
		return
	}

	if raw := r.URL.Query().Get("subject"); raw != "" {
		subject := vocab.Subject(raw)
		if !vocab.IsSubject(subject) {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "bad_request",
				"message": "unknown subject",
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"subject": subject,
			"actions": ability.SubjectPermissions(subject),
		})
		return
	}

	permissions := make(map[string][]vocab.Action, len(vocab.Subjects()))
	for _, subject := range vocab.Subjects() {
		permissions[subject.String()] = ability.SubjectPermissions(subject)
	}
	respondJSON(w, http.StatusOK, map[string]any{"permissions": permissions})
}

func (h *apiHandler) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "unavailable",
			"message": "decision audit is not configured",
		})
		return
	}

	filter := store.DecisionFilter{
		Effect: r.URL.Query().Get("effect"),
		UserID: r.URL.Query().Get("user_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondJSON(w, http.StatusBadRequest, map[string]string{
				"error":   "bad_request",
				"message": "limit must be a positive integer",
			})
			return
		}
		filter.Limit = limit
	}

	entries, err := h.repo.RecentDecisions(r.Context(), filter)
	if err != nil {
		errutil.LogError(slog.Default(), "failed to query decisions", err)
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "internal",
			"message": "failed to query decisions",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"decisions": entries})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response body", "error", err)
	}
}
