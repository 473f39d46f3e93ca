package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dpfarias/leadline-backend/api/responses"
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// CronAuth guards the HTTP sweep triggers with the shared cron secret. The
// secret arrives as a bearer token or, for platform schedulers that cannot
// set headers, as a query parameter.
func CronAuth(logg *logger.Logger, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "cron secret not configured"))
				return
			}

			provided := bearerToken(r)
			if provided == "" {
				provided = r.URL.Query().Get("secret")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid cron secret"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
