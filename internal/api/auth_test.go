package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T, ttl time.Duration) *Auth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPass), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuth(testUser, string(hash), "test-secret-key", ttl)
}

func TestVerifyTokenAcceptsBearerPrefix(t *testing.T) {
	auth := newTestAuth(t, time.Hour)
	tok, err := auth.Login(testUser, testPass)
	require.NoError(t, err)

	for _, raw := range []string{tok.AccessToken, "Bearer " + tok.AccessToken} {
		claims, err := auth.VerifyToken(raw)
		require.NoError(t, err)
		assert.Equal(t, testUser, claims.Username)
		assert.Equal(t, "filebotter", claims.Issuer)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	auth := newTestAuth(t, -time.Minute)
	tok, err := auth.Login(testUser, testPass)
	require.NoError(t, err)

	_, err = auth.VerifyToken(tok.AccessToken)
	assert.Error(t, err)
}

func TestMiddlewarePutsUserInContext(t *testing.T) {
	auth := newTestAuth(t, time.Hour)
	tok, err := auth.Login(testUser, testPass)
	require.NoError(t, err)

	var gotUser string
	var found bool
	h := auth.Middleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, found = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, found)
	assert.Equal(t, testUser, gotUser)
}
