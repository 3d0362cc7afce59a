// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/autoline-ai/handoff-platform/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// OperatorKey is the context key for the authenticated operator.
	OperatorKey ContextKey = "operator"
	// TenantIDKey is the context key for tenant ID.
	TenantIDKey ContextKey = "tenant_id"
)

// Claims represents JWT claims for an authenticated operator.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string `json:"tenant_id"`
	DisplayName string `json:"display_name"`
}

// Auth creates JWT authentication middleware. The token subject is the
// operator id; tenant_id scopes every downstream query.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid || claims.Subject == "" || claims.TenantID == "" {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			operator := model.Operator{
				ID:          claims.Subject,
				DisplayName: claims.DisplayName,
			}

			ctx := context.WithValue(r.Context(), OperatorKey, operator)
			ctx = context.WithValue(ctx, TenantIDKey, claims.TenantID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator gets the authenticated operator from context.
func GetOperator(ctx context.Context) model.Operator {
	if v := ctx.Value(OperatorKey); v != nil {
		return v.(model.Operator)
	}
	return model.Operator{}
}

// GetTenantID gets tenant ID from context.
func GetTenantID(ctx context.Context) string {
	if v := ctx.Value(TenantIDKey); v != nil {
		return v.(string)
	}
	return ""
}
