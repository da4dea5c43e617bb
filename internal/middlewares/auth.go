package middlewares

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sbilibin2017/gw-gold-wallet/internal/logger"
)

// Tokener is the slice of the JWT provider the middleware needs.
type Tokener interface {
	GetTokenFromRequest(ctx context.Context, r *http.Request) (string, error)
	Validate(ctx context.Context, tokenString string) error
}

// AuthMiddleware rejects requests without a valid JWT. Rejections carry the
// same JSON error body the handlers use, so clients see one error shape.
func AuthMiddleware(tokener Tokener) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, err := tokener.GetTokenFromRequest(ctx, r)
			if err == nil {
				err = tokener.Validate(ctx, token)
			}
			if err != nil {
				logger.Log.Errorw("authorization failed",
					"request_id", RequestIDFromContext(ctx),
					"error", err,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
