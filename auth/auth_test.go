package auth

import (
	"net/http"
	"net/http/httptest"
	"support-chat/domain"
	"support-chat/errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("a-secret-long-enough-for-hs256", time.Hour)
	user := domain.User{ID: "agent-7", Role: domain.RoleAgent, DisplayName: "Sam"}

	token, err := issuer.GenerateToken(user)
	req.NoError(err)

	claims, err := issuer.ValidateToken(token)
	req.NoError(err)
	req.Equal(user, claims.User())
}

func TestTokenValidation(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("a-secret-long-enough-for-hs256", time.Hour)
	expired := NewTokenIssuer("a-secret-long-enough-for-hs256", -time.Minute)
	other := NewTokenIssuer("another-secret", time.Hour)
	user := domain.User{ID: "c1", Role: domain.RoleCustomer}

	expiredToken, err := expired.GenerateToken(user)
	req.NoError(err)
	foreignToken, err := other.GenerateToken(user)
	req.NoError(err)
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, CustomClaims{UserID: "c1", Role: "customer"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	tests := []struct {
		name  string
		token string
	}{
		{"Garbage", "not-a-token"},
		{"Expired", expiredToken},
		{"Wrong secret", foreignToken},
		{"Unsigned", noneToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.ValidateToken(tt.token)
			require.ErrorIs(t, err, errors.ErrInvalidToken)
		})
	}
}

func TestGenerateToken_Rejects_Unknown_Role(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer("a-secret-long-enough-for-hs256", time.Hour)

	_, err := issuer.GenerateToken(domain.User{ID: "x", Role: "admin"})
	req.ErrorIs(err, errors.ErrInvalidToken)

	_, err = issuer.GenerateToken(domain.User{Role: domain.RoleAgent})
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestDirectory(t *testing.T) {
	req := require.New(t)
	directory := NewDirectory()

	_, err := directory.ResolveRole("a1")
	req.ErrorIs(err, errors.ErrNotAuthorized)

	directory.Remember(domain.User{ID: "a1", Role: domain.RoleAgent})
	role, err := directory.ResolveRole("a1")
	req.NoError(err)
	req.Equal(domain.RoleAgent, role)
}

func TestMiddleware(t *testing.T) {
	issuer := NewTokenIssuer("a-secret-long-enough-for-hs256", time.Hour)
	directory := NewDirectory()
	user := domain.User{ID: "c1", Role: domain.RoleCustomer, DisplayName: "Kim"}
	token, err := issuer.GenerateToken(user)
	require.NoError(t, err)

	var seen domain.User
	handler := Middleware(issuer, directory)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("should reject a request without token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should reject an invalid token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token=nope", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("should accept a bearer token", func(t *testing.T) {
		req := require.New(t)
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(rec, r)
		req.Equal(http.StatusNoContent, rec.Code)
		req.Equal(user, seen)
	})

	t.Run("should accept a query token and remember the user", func(t *testing.T) {
		req := require.New(t)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
		req.Equal(http.StatusNoContent, rec.Code)
		role, err := directory.ResolveRole("c1")
		req.NoError(err)
		req.Equal(domain.RoleCustomer, role)
	})
}
