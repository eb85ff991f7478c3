// Package middleware carries the request-identity shim. Authentication
// itself happens upstream (API gateway / session layer); by the time a
// request reaches this service the caller's account id is already resolved
// and travels in a trusted header.
package middleware

import (
	"context"
	"net/http"
)

const AccountIDHeader = "X-Account-ID"

type accountIDKey struct{}

// RequireAccountID rejects requests without a resolved identity and stashes
// the account id in the request context for handlers.
func RequireAccountID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.Header.Get(AccountIDHeader)
		if accountID == "" {
			http.Error(w, "Missing account identity", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey{}, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func AccountIDFromContext(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(accountIDKey{}).(string)
	return accountID, ok
}
