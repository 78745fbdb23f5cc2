// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for authentication,
// rate limiting, and CSRF protection.
package middleware

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/cfph/ngocms-go/internal/session"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// ContextKeyAccount carries the authenticated account id.
const ContextKeyAccount ContextKey = "account"

// RequireAuth rejects unauthenticated requests with a JSON 401. The admin
// dashboard is an API client, so there is no redirect to a login page.
// Authenticated requests refresh the activity tracker.
func RequireAuth(sm *scs.SessionManager, tracker *session.Tracker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := sm.GetString(r.Context(), session.KeyAccountID)
			if accountID == "" {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
				return
			}

			if tracker != nil {
				tracker.Touch(sm.Token(r.Context()))
			}

			ctx := context.WithValue(r.Context(), ContextKeyAccount, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAccountID returns the authenticated account id from the request
// context, or "".
func GetAccountID(r *http.Request) string {
	id, _ := r.Context().Value(ContextKeyAccount).(string)
	return id
}
