package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "studystreak.identity"}

func signToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopeStudyRead, ScopeStudyWrite},
	}
}

func TestParseClaims(t *testing.T) {
	claims, err := ParseClaims(signToken(t, validClaims(), testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeStudyWrite))
	require.True(t, claims.HasAnyScope("other", ScopeStudyRead))
	require.False(t, claims.HasScope("admin"))

	spaceSeparated := validClaims()
	spaceSeparated["scopes"] = "study:read  other"
	claims, err = ParseClaims(signToken(t, spaceSeparated, testConfig.Secret), testConfig)
	require.NoError(t, err)
	require.Len(t, claims.Scopes, 2)
}

func TestParseClaimsRejects(t *testing.T) {
	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	wrongIssuer := validClaims()
	wrongIssuer["iss"] = "someone-else"

	noSubject := validClaims()
	delete(noSubject, "sub")

	noExpiry := validClaims()
	delete(noExpiry, "exp")

	cases := map[string]string{
		"expired":      signToken(t, expired, testConfig.Secret),
		"wrong issuer": signToken(t, wrongIssuer, testConfig.Secret),
		"no subject":   signToken(t, noSubject, testConfig.Secret),
		"no expiry":    signToken(t, noExpiry, testConfig.Secret),
		"wrong secret": signToken(t, validClaims(), "other-secret"),
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClaims(token, testConfig)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := ParseClaims("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)
}

func TestMiddleware(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig).Wrap(next)

	req := httptest.NewRequest(http.MethodGet, "/v1/streak", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(), testConfig.Secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "user-1", seen.Subject)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/streak", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "missing bearer token")

	req = httptest.NewRequest(http.MethodGet, "/v1/streak", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	seen = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)
}
