package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/br7tech/billdesk/internal/platform/httpx"
	"github.com/br7tech/billdesk/internal/shared"
)

// RequireSession rejects requests without an active server session and
// records every accepted request as activity.
func RequireSession(logger *slog.Logger, service *Service, sessions *shared.SessionManager) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sess := shared.SessionFromContext(ctx)
			if sess == nil || sess.Get(SessionTokenKey) == "" {
				httpx.RespondError(w, ErrLoginRequired)
				return
			}
			token := sess.Get(SessionTokenKey)
			user, err := service.Validate(ctx, token)
			if err != nil {
				if errors.Is(err, ErrSessionExpired) {
					sessions.Destroy(sess)
				} else {
					logger.Error("validate session", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if err := service.Touch(ctx, token); err != nil {
				logger.Warn("touch session", slog.Any("error", err))
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithUserID(ctx, user.ID)))
		})
	}
}
