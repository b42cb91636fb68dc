package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/notary/pkg/auth"
)

const secret = "test-secret-please-rotate"

func guarded(t *testing.T, v *auth.JWTValidator) http.Handler {
	t.Helper()
	return auth.RequireRole(v, auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		require.True(t, ok)
		w.Header().Set("X-Subject", claims.Subject)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func call(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/airdrop", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequireRole_AdminToken(t *testing.T) {
	token, err := auth.IssueToken(secret, "ops", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	w := call(guarded(t, auth.NewJWTValidator(secret)), token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "ops", w.Header().Get("X-Subject"))
}

func TestRequireRole_Rejections(t *testing.T) {
	v := auth.NewJWTValidator(secret)
	viewer, err := auth.IssueToken(secret, "ops", []string{"viewer"}, time.Minute)
	require.NoError(t, err)
	expired, err := auth.IssueToken(secret, "ops", []string{auth.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	foreign, err := auth.IssueToken("another-secret", "ops", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)
	noSubject, err := auth.IssueToken(secret, "", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	// An unsigned token must never pass.
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "notary", Subject: "ops", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		Roles:            []string{auth.RoleAdmin},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong role", viewer, http.StatusForbidden},
		{"expired", expired, http.StatusUnauthorized},
		{"foreign secret", foreign, http.StatusUnauthorized},
		{"no subject", noSubject, http.StatusUnauthorized},
		{"alg none", none, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(guarded(t, v), tc.token)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
		})
	}
}

func TestRequireRole_NilValidatorFailsClosed(t *testing.T) {
	token, err := auth.IssueToken(secret, "ops", []string{auth.RoleAdmin}, time.Minute)
	require.NoError(t, err)

	w := call(guarded(t, auth.NewJWTValidator("")), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	_, err = auth.IssueToken("", "ops", nil, time.Minute)
	assert.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	fixed := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", fixed)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, fixed, seen)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "<script>")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "<script>", seen)
}
