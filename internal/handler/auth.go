// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cfph/ngocms-go/internal/auth"
	"github.com/cfph/ngocms-go/internal/session"
)

// Login authenticates an admin and opens a session. Remember controls the
// cookie persistence tier: remembered sessions survive a browser restart,
// the rest end with the browser session. Either way the session idles out
// after ten minutes.
//
// Every failure returns the same generic message; responses never reveal
// whether the email exists.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))

	if locked, _ := h.protect.IsAccountLocked(email); locked {
		WriteError(w, http.StatusTooManyRequests, "account_locked",
			"Too many failed attempts. Try again later.", nil)
		return
	}

	account, err := h.auth.Authenticate(r.Context(), email, body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.protect.RecordFailedAttempt(email)
			WriteUnauthorized(w, "Invalid credentials")
			return
		}
		slog.Error("authentication failed", "error", err)
		WriteInternalError(w, "Login failed")
		return
	}

	h.protect.RecordSuccessfulLogin(email)

	// Fresh token on privilege change.
	if err := h.sessions.RenewToken(r.Context()); err != nil {
		slog.Error("renewing session token", "error", err)
		WriteInternalError(w, "Login failed")
		return
	}
	h.sessions.Put(r.Context(), session.KeyAccountID, account.ID)
	h.sessions.Put(r.Context(), session.KeyEmail, account.Email)
	h.sessions.RememberMe(r.Context(), body.Remember)
	h.tracker.Touch(h.sessions.Token(r.Context()))

	slog.Info("admin logged in", "email", account.Email, "remember", body.Remember)
	WriteSuccess(w, map[string]any{
		"email":    account.Email,
		"remember": body.Remember,
	}, nil)
}

// Logout destroys the session. Safe to call without one.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.tracker.Forget(h.sessions.Token(r.Context()))
	if err := h.sessions.Destroy(r.Context()); err != nil {
		slog.Error("destroying session", "error", err)
		WriteInternalError(w, "Logout failed")
		return
	}
	WriteSuccess(w, map[string]bool{"loggedOut": true}, nil)
}

// Me reports the current session, so the dashboard can restore state on
// reload without re-prompting for credentials.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := h.sessions.GetString(r.Context(), session.KeyAccountID)
	if accountID == "" {
		WriteUnauthorized(w, "Not logged in")
		return
	}
	WriteSuccess(w, map[string]string{
		"email": h.sessions.GetString(r.Context(), session.KeyEmail),
	}, nil)
}
