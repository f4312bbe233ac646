package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tablevault/internal/domain"
	"tablevault/internal/observability/metrics"
	"tablevault/internal/observability/middleware"
	"tablevault/internal/service"
)

type subjectKey struct{}

func contextWithSubject(ctx context.Context, c *domain.TokenClaims) context.Context {
	return context.WithValue(ctx, subjectKey{}, c)
}

// SubjectFrom returns the verified access token claims stored by RequireBearer.
func SubjectFrom(ctx context.Context) (*domain.TokenClaims, bool) {
	c, ok := ctx.Value(subjectKey{}).(*domain.TokenClaims)
	return c, ok && c != nil
}

// RequireBearer admits requests carrying a valid access token.
func RequireBearer(tokens service.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := "success"
			defer func() {
				metrics.AuthenticationAttemptsTotal.WithLabelValues(result).Inc()
			}()
			log := middleware.Logger(r.Context())

			raw := r.Header.Get("Authorization")
			if len(raw) < len("Bearer ") || !strings.EqualFold(raw[:len("Bearer ")], "bearer ") {
				result = "missing"
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			tok := strings.TrimSpace(raw[len("Bearer "):])
			if tok == "" {
				result = "missing"
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, "Not authenticated")
				return
			}

			claims, err := tokens.Verify(tok)
			if err != nil {
				result = "failure"
				var verr *domain.ValidationError
				if errors.As(err, &verr) {
					log.Warn("bearer token has unexpected claims", "error", err)
					writeDetail(w, http.StatusUnprocessableEntity, verr.Fields)
					return
				}
				log.Warn("bearer token rejected", "error", err)
				writeDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			if claims.Type != domain.TokenAccess {
				result = "failure"
				log.Warn("bearer token is not an access token", "typ", claims.Type)
				writeDetail(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithSubject(r.Context(), claims)))
		})
	}
}

func mustSubject(r *http.Request) *domain.TokenClaims {
	c, ok := SubjectFrom(r.Context())
	if !ok {
		// routes using this are always mounted behind RequireBearer
		panic("transport/http: handler mounted without RequireBearer")
	}
	return c
}
