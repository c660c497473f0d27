package middleware

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

// UserIDKey is the context key under which the authenticated user id is stored.
const UserIDKey contextKey = "userID"

// Identity extracts the caller's user id from the X-User-ID header set by the
// authenticating gateway and places it in the request context. Requests
// without a valid id are rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
