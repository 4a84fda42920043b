package identity

import (
	"log/slog"
	"net/http"

	"github.com/bookline-hq/bookline/internal/platform/httpx"
	"github.com/bookline-hq/bookline/internal/shared"
)

// APIKeyAuth authenticates service callers with HTTP basic credentials
// (key ID and secret) and attaches the resolved actor to the request
// context. Everything after this middleware can trust the actor.
func APIKeyAuth(svc *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			keyID, secret, ok := r.BasicAuth()
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			user, err := svc.VerifyAPIKey(r.Context(), keyID, secret)
			if err != nil {
				if err != shared.ErrInvalidCredentials && logger != nil {
					logger.Error("api key verification", slog.Any("error", err))
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			ctx := shared.ContextWithActor(r.Context(), shared.Actor{
				UserID:   user.ID,
				TenantID: user.TenantID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
