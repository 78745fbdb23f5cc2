// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session configures server-side sessions for the admin dashboard.
// Sessions idle out after ten minutes of inactivity. Whether the cookie
// survives a browser restart depends on the remember-me choice made at
// login.
package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// IdleTimeout is the inactivity window after which a session expires.
const IdleTimeout = 10 * time.Minute

// Keys stored in session data.
const (
	KeyAccountID = "accountID"
	KeyEmail     = "email"
)

// New creates a session manager backed by the SQLite sessions table.
// Cookie.Persist is off so each login decides its own persistence tier via
// RememberMe: remembered sessions get a cookie that survives browser
// restarts, the rest are scoped to the browser session.
func New(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()

	sm.Store = sqlite3store.New(db)

	sm.IdleTimeout = IdleTimeout
	sm.Lifetime = 24 * time.Hour
	sm.Cookie.Persist = false
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = !isDev // Secure cookies in production only

	return sm
}
