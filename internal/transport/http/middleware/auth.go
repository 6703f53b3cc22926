package httpmw

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sachinggsingh/synceditor-relay/internal/auth"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// RequireAuth проверяет Bearer-токен через верификатор и кладёт identity в ctx
func RequireAuth(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") || len(header) <= 7 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing bearer token"}`))
				return
			}
			token := strings.TrimSpace(header[7:])

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				var authErr *auth.AuthError
				if !errors.As(err, &authErr) {
					slog.Error("http auth failed", "err", err)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid or expired token"}`))
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(auth.Identity)
	return id, ok
}
