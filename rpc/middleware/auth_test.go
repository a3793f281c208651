package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"epochstake/crypto"
)

const testSecret = "test-secret"

func captureCaller(t *testing.T, auth *Authenticator, header string) (*httptest.ResponseRecorder, *Caller) {
	t.Helper()
	var seen *Caller
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CallerFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestAuthenticatorAttachesCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "epochstake", Audience: []string{"rpc"}}, nil)
	owner := crypto.DeriveAddress([]byte("owner"))
	token, err := IssueToken(testSecret, TokenRequest{Subject: owner, Scopes: []string{ScopeAdmin}, Issuer: "epochstake", Audience: []string{"rpc"}})
	require.NoError(t, err)

	rec, caller := captureCaller(t, auth, "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, caller)
	require.Equal(t, owner, caller.Address)
	require.True(t, caller.HasScope(ScopeAdmin))
}

func TestAuthenticatorAnonymous(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	rec, caller := captureCaller(t, auth, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, caller)
}

func TestAuthenticatorRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "epochstake"}, nil)
	owner := crypto.DeriveAddress([]byte("owner"))

	wrongSecret, err := IssueToken("other", TokenRequest{Subject: owner, Issuer: "epochstake"})
	require.NoError(t, err)
	wrongIssuer, err := IssueToken(testSecret, TokenRequest{Subject: owner, Issuer: "someone"})
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, TokenRequest{Subject: owner, Issuer: "epochstake", TTL: time.Minute, Now: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": owner.String(), "iss": "epochstake"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "0xnotbech32", "iss": "epochstake", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	for name, header := range map[string]string{
		"wrong secret": "Bearer " + wrongSecret,
		"wrong issuer": "Bearer " + wrongIssuer,
		"expired":      "Bearer " + expired,
		"no expiry":    "Bearer " + noExpiry,
		"bad subject":  "Bearer " + badSubject,
		"not bearer":   "Basic abc",
	} {
		t.Run(name, func(t *testing.T) {
			rec, caller := captureCaller(t, auth, header)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Nil(t, caller)
			require.Contains(t, rec.Body.String(), "-32001")
		})
	}
}

func TestIssueTokenValidates(t *testing.T) {
	_, err := IssueToken("", TokenRequest{Subject: crypto.Address{1}})
	require.Error(t, err)
	_, err = IssueToken(testSecret, TokenRequest{})
	require.Error(t, err)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.NotEmpty(t, seen)
	require.Equal(t, seen, rec.Header().Get(HeaderRequestID))

	req.Header.Set(HeaderRequestID, "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "client-id", seen)
}
