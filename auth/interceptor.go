package auth

import (
	"context"
	"net/http"
	"strings"
	"support-chat/domain"

	"github.com/gorilla/mux"
)

type contextKey string

const userKey contextKey = "user"

// Middleware authenticates HTTP requests with a bearer token or a token query parameter.
// Browsers cannot set headers on a WebSocket upgrade, hence the query fallback.
// The authenticated user is recorded in the directory and injected into the request context.
func Middleware(issuer *TokenIssuer, directory *Directory) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := tokenFromRequest(r)
			if tokenStr == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}
			claims, err := issuer.ValidateToken(tokenStr)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}
			user := claims.User()
			directory.Remember(user)
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func WithUser(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userKey).(domain.User)
	return user, ok
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
