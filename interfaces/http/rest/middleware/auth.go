package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"mindmesh/pkg/auth"
	"mindmesh/pkg/common"
)

// Authenticate validates the bearer token and attaches the user to the
// request context. An IP rate limiter in front keeps token brute force off
// the validator.
func Authenticate(issuer *auth.TokenIssuer, logger *zap.Logger) func(next http.Handler) http.Handler {
	ipLimiter := auth.NewIPRateLimiter(120)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, _ := ipLimiter.Allow(r.Context(), clientIP(r))
			if !allowed {
				common.RespondError(w, http.StatusTooManyRequests,
					common.StandardErrorCodes.TooManyRequests, "Rate limit exceeded")
				return
			}

			token := extractToken(r)
			if token == "" {
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, "Missing authentication token")
				return
			}

			claims, err := issuer.ParseUser(token)
			if err != nil {
				logger.Warn("Invalid API token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				message := "Invalid token"
				if err == auth.ErrExpiredToken {
					message = "Token has expired"
				}
				common.RespondError(w, http.StatusUnauthorized,
					common.StandardErrorCodes.Unauthorized, message)
				return
			}

			ctx := auth.SetUserInContext(r.Context(), &auth.UserContext{
				UserID: claims.Subject,
				Role:   claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken pulls the bearer token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}

// clientIP extracts the client IP address
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
