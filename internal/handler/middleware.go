package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/julo/repayment-service/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const operatorIDKey contextKey = "operatorID"

// AuthMiddleware checks the bearer JWT and puts the operator id in the context
func AuthMiddleware(svc *service.Service, log *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("Missing Authorization header")
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				log.Warn("Malformed Authorization header")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			operatorID, err := svc.ParseToken(parts[1])
			if err != nil {
				log.WithError(err).Warn("Invalid token")
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), operatorIDKey, operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorID returns the authenticated operator, if any
func OperatorID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(operatorIDKey).(int64)
	return id, ok
}
