// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package enforce

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/policy"
	"github.com/gatewarden/gatewarden/internal/vocab"
)

func testRoutes(t *testing.T) *RouteMap {
	t.Helper()
	m, err := NewRouteMap([]RouteRule{
		{Pattern: "GET /api/content", Action: vocab.ActionRead, Subject: vocab.SubjectContent},
		{Pattern: "GET /api/content/*", Action: vocab.ActionRead, Subject: vocab.SubjectContent},
		{Pattern: "DELETE /api/content/*", Action: vocab.ActionDelete, Subject: vocab.SubjectContent},
		{Pattern: "POST /api/services", Action: vocab.ActionCreate, Subject: vocab.SubjectService},
	})
	require.NoError(t, err)
	return m
}

func TestRouteMap_Lookup(t *testing.T) {
	m := testRoutes(t)

	tests := []struct {
		method, path string
		wantAction   vocab.Action
		wantSubject  vocab.Subject
		wantFound    bool
	}{
		{http.MethodGet, "/api/content", vocab.ActionRead, vocab.SubjectContent, true},
		{http.MethodGet, "/api/content/42", vocab.ActionRead, vocab.SubjectContent, true},
		{http.MethodDelete, "/api/content/42", vocab.ActionDelete, vocab.SubjectContent, true},
		{http.MethodPost, "/api/services", vocab.ActionCreate, vocab.SubjectService, true},
		// A single wildcard does not cross path segments.
		{http.MethodGet, "/api/content/42/versions", "", "", false},
		{http.MethodPatch, "/api/content/42", "", "", false},
		{http.MethodGet, "/api/unknown", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rule, found := m.Lookup(tt.method, tt.path)
			assert.Equal(t, tt.wantFound, found)
			if tt.wantFound {
				assert.Equal(t, tt.wantAction, rule.Action)
				assert.Equal(t, tt.wantSubject, rule.Subject)
			}
		})
	}
}

func TestRouteMap_FirstMatchWins(t *testing.T) {
	m, err := NewRouteMap([]RouteRule{
		{Pattern: "GET /api/content/pending", Action: vocab.ActionApprove, Subject: vocab.SubjectContent},
		{Pattern: "GET /api/content/*", Action: vocab.ActionRead, Subject: vocab.SubjectContent},
	})
	require.NoError(t, err)

	rule, found := m.Lookup(http.MethodGet, "/api/content/pending")
	require.True(t, found)
	assert.Equal(t, vocab.ActionApprove, rule.Action)

	rule, found = m.Lookup(http.MethodGet, "/api/content/42")
	require.True(t, found)
	assert.Equal(t, vocab.ActionRead, rule.Action)
}

func TestNewRouteMap_RejectsUnsafePatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		errPart string
	}{
		{"empty", "", "must not be empty"},
		{"too long", "GET /" + strings.Repeat("a", maxRoutePatternLen), "maximum length"},
		{"bracket class", "GET /api/content/[0-9]", "bracket character class"},
		{"brace alternation", "GET /api/{content,services}", "brace alternation"},
		{"globstar", "GET /api/**", "globstar"},
		{"too many wildcards", "GET /*/*/*/*/*/*", "wildcard characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouteMap([]RouteRule{
				{Pattern: tt.pattern, Action: vocab.ActionRead, Subject: vocab.SubjectContent},
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestNewRouteMap_RejectsUnknownVocabulary(t *testing.T) {
	_, err := NewRouteMap([]RouteRule{
		{Pattern: "GET /api/content", Action: "browse", Subject: vocab.SubjectContent},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")

	_, err = NewRouteMap([]RouteRule{
		{Pattern: "GET /api/content", Action: vocab.ActionRead, Subject: "Widget"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown subject")
}

func TestRouteMapHandler_EnforcesMappedRoute(t *testing.T) {
	auth := NewAuthenticator(policy.NewCompiler(), claimsFromHeaders)
	handler := auth.Handler(testRoutes(t).Handler(okHandler()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content/42", nil)
	req.Header.Set("X-Role", "viewer")
	req.Header.Set("X-Segment", "internal")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/content/42", nil)
	req.Header.Set("X-Role", "viewer")
	req.Header.Set("X-Segment", "internal")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouteMapHandler_DeniesUnmappedRoute(t *testing.T) {
	auth := NewAuthenticator(policy.NewCompiler(), claimsFromHeaders)
	handler := auth.Handler(testRoutes(t).Handler(okHandler()))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/secret", nil)
	req.Header.Set("X-Role", "admin")
	req.Header.Set("X-Segment", "internal")
	handler.ServeHTTP(rec, req)

	// Even an admin gets 403 on a route nobody mapped.
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouteMapHandler_MissingAbility(t *testing.T) {
	handler := testRoutes(t).Handler(okHandler())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/content", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
