package jwt

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"masskribbl/internal/app/user"
)

const secret = "test-secret"

var alice = user.User{ID: "guest_abc123", Username: "alice", Email: "a@example.com"}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken(NewPayload(alice), secret, SessionExpiration)
	require.NoError(t, err)

	payload, err := ParseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, alice, payload.User())
	assert.Equal(t, TokenIssuer, payload.Issuer)
}

func TestParseTokenRejects(t *testing.T) {
	t.Parallel()

	valid, err := GenerateToken(NewPayload(alice), secret, SessionExpiration)
	require.NoError(t, err)
	expired, err := GenerateToken(NewPayload(alice), secret, -time.Minute)
	require.NoError(t, err)

	foreign := gojwt.NewWithClaims(gojwt.SigningMethodHS256, &Payload{
		StandardClaims: gojwt.StandardClaims{Issuer: "someone-else", ExpiresAt: time.Now().Add(time.Hour).Unix()},
		ID:             alice.ID,
	})
	foreignToken, err := foreign.SignedString([]byte(secret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other"},
		{"expired", expired, secret},
		{"foreign issuer", foreignToken, secret},
		{"garbage", "not.a.token", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestRequireIdentity(t *testing.T) {
	t.Parallel()

	token, err := GenerateToken(NewPayload(alice), secret, SessionExpiration)
	require.NoError(t, err)

	var seen *Payload
	h := RequireIdentity(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetPayloadFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(r *http.Request) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/ws", nil)))
	assert.Equal(t, http.StatusUnauthorized, serve(httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil)))
	assert.Nil(t, seen)

	assert.Equal(t, http.StatusOK, serve(httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)))
	require.NotNil(t, seen)
	assert.Equal(t, alice.ID, seen.ID)

	seen = nil
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, serve(r))
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Username)
}
