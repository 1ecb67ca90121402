package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, cfg Config, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	require.NoError(t, err)
	return signed
}

func TestParseValidToken(t *testing.T) {
	cfg := Config{Secret: "topsecret", Issuer: "soonish"}
	signed := signToken(t, cfg, jwt.MapClaims{
		"sub":    "alice",
		"iss":    "soonish",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopePlansRead, ScopeOverlapsRead},
	})

	claims, err := Parse(signed, cfg)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.True(t, claims.HasScope(ScopePlansRead))
	assert.False(t, claims.HasScope("plans:write"))
}

func TestParseRejectsWrongIssuerAndMissingSubject(t *testing.T) {
	cfg := Config{Secret: "topsecret", Issuer: "soonish"}

	wrongIssuer := signToken(t, cfg, jwt.MapClaims{
		"sub": "alice",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err := Parse(wrongIssuer, cfg)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noSubject := signToken(t, cfg, jwt.MapClaims{
		"iss": "soonish",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	_, err = Parse(noSubject, cfg)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsTokenWithoutExpiry(t *testing.T) {
	cfg := Config{Secret: "topsecret", Issuer: "soonish"}

	noExpiry := signToken(t, cfg, jwt.MapClaims{
		"sub":    "alice",
		"iss":    "soonish",
		"scopes": []string{ScopePlansRead},
	})
	claims, err := Parse(noExpiry, cfg)
	assert.Nil(t, claims)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddlewareInjectsClaimsAndSkipsHealthEndpoints(t *testing.T) {
	cfg := Config{Secret: "topsecret", Issuer: "soonish"}
	mw := NewMiddleware(cfg, nil)

	var seen *Claims
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, cfg, jwt.MapClaims{
		"sub": "alice",
		"iss": "soonish",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Subject)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/feed", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	seen = nil
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, seen)
}
