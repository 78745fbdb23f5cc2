// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cfph/ngocms-go/internal/notify"
)

// newsletterResponse is the relay's legacy wire shape. The dashboard's send
// dialog predates the envelope used elsewhere, so this endpoint keeps the
// flat success/error form.
type newsletterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewsletterStatus answers GET probes against the send endpoint.
func (h *Handler) NewsletterStatus(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, newsletterResponse{
		Success: true,
		Message: "Newsletter API is running. Use POST to send.",
	})
}

// SendNewsletter relays a broadcast to the given subscriber addresses.
func (h *Handler) SendNewsletter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject string   `json:"subject"`
		HTML    string   `json:"html"`
		Emails  []string `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteJSON(w, http.StatusBadRequest, newsletterResponse{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	if body.Subject == "" || body.HTML == "" || len(body.Emails) == 0 {
		WriteJSON(w, http.StatusBadRequest, newsletterResponse{
			Success: false,
			Error:   "Missing required fields: subject, html, or emails",
		})
		return
	}

	if h.mailer == nil {
		WriteJSON(w, http.StatusServiceUnavailable, newsletterResponse{
			Success: false,
			Error:   "Email service is not configured",
		})
		return
	}

	n, err := h.mailer.Send(body.Subject, body.HTML, body.Emails)
	if err != nil {
		slog.Error("newsletter send failed", "subject", body.Subject, "error", err)
		WriteJSON(w, http.StatusInternalServerError, newsletterResponse{
			Success: false,
			Error:   "Failed to send newsletter",
		})
		return
	}

	_ = h.feed.Append(r.Context(), notify.TypeSystem,
		fmt.Sprintf("Newsletter %q sent to %d subscribers", body.Subject, n))
	WriteJSON(w, http.StatusOK, newsletterResponse{
		Success: true,
		Message: fmt.Sprintf("Newsletter sent to %d subscribers", n),
	})
}
