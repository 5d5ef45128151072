package api

import (
	"context"
	"net/http"
	"strconv"
)

// The authentication layer in front of this service verifies tokens and
// forwards the resolved identity in headers. This middleware only lifts
// those headers into the request context.
const (
	headerCustomerID = "X-Customer-Id"
	headerAdmin      = "X-Admin"
)

type contextKey int

const (
	customerIDKey contextKey = iota
	adminKey
)

func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := r.Header.Get(headerCustomerID); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				ctx = context.WithValue(ctx, customerIDKey, id)
			}
		}
		if r.Header.Get(headerAdmin) == "true" {
			ctx = context.WithValue(ctx, adminKey, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func customerID(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(customerIDKey).(int64)
	return id, ok
}

func isAdmin(r *http.Request) bool {
	admin, _ := r.Context().Value(adminKey).(bool)
	return admin
}

func (a *API) requireAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !isAdmin(r) {
			respondError(w, http.StatusForbidden, "forbidden", "administrator access required")
			return
		}
		h(w, r)
	}
}
