package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type ownerKeyType string

const OwnerIDKey ownerKeyType = "owner_id"

// Auth validates an HS256 Bearer JWT and puts its subject in the context as
// the owner id.
func Auth(hmacSecret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if len(ah) < len("bearer ") || !strings.EqualFold(ah[:len("bearer ")], "bearer ") {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			tokenStr := strings.TrimSpace(ah[len("bearer "):])
			token, err := parser.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
				return hmacSecret, nil
			})
			if err != nil || !token.Valid {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			sub, err := token.Claims.GetSubject()
			if err != nil || sub == "" {
				writeErr(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
				return
			}
			ctx := context.WithValue(r.Context(), OwnerIDKey, sub)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOwnerID(ctx context.Context) string {
	if s, ok := ctx.Value(OwnerIDKey).(string); ok {
		return s
	}
	return ""
}
