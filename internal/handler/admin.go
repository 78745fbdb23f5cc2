// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cfph/ngocms-go/internal/editor"
	"github.com/cfph/ngocms-go/internal/gate"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
)

// maxUploadBytes bounds multipart submissions; inline images are capped by
// the downscale step, but the raw upload still has to fit in memory.
const maxUploadBytes = 20 << 20

// AdminList returns the full list for a collection. The loading flag lets
// the dashboard distinguish a pending first load from an empty collection.
func (h *Handler) AdminList(w http.ResponseWriter, r *http.Request) {
	s, ok := h.syncs[chi.URLParam(r, "collection")]
	if !ok {
		WriteNotFound(w, "Unknown collection")
		return
	}

	items, loading := s.Snapshot()
	WriteSuccess(w, items, &Meta{Total: len(items), Loading: loading})
}

// AdminCreate creates a record from a form submission.
func (h *Handler) AdminCreate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, "")
}

// AdminUpdate updates an existing record.
func (h *Handler) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, chi.URLParam(r, "id"))
}

// submit runs the shared editor pipeline for create and update.
func (h *Handler) submit(w http.ResponseWriter, r *http.Request, id string) {
	collection := chi.URLParam(r, "collection")
	ed, ok := h.editors[collection]
	if !ok {
		WriteNotFound(w, "Unknown or read-only collection")
		return
	}

	in, err := readInput(r)
	if err != nil {
		WriteBadRequest(w, err.Error(), nil)
		return
	}

	newID, err := ed.Submit(r.Context(), id, in)
	if err != nil {
		h.writeEditorError(w, err)
		return
	}

	if id == "" {
		WriteCreated(w, map[string]string{"id": newID})
		return
	}
	WriteSuccess(w, map[string]string{"id": newID}, nil)
}

// AdminDelete implements the two-step confirmation flow. The first request
// answers with a prompt and a single-use token; repeating the request with
// the token performs the delete. Without a valid token nothing is removed.
func (h *Handler) AdminDelete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	ed, ok := h.editors[collection]
	if !ok {
		WriteNotFound(w, "Unknown or read-only collection")
		return
	}

	target := collection + "/" + id
	token := r.URL.Query().Get("confirm")
	if token == "" {
		sc, _ := schema.ByPath(collection)
		prompt := "Delete this " + sc.Singular + "? This cannot be undone."
		WriteSuccess(w, map[string]string{
			"prompt":       prompt,
			"confirmToken": h.tokens.Issue(prompt, target),
		}, nil)
		return
	}

	// The token only confirms the record it was issued for.
	if !h.tokens.Redeem(token, target) {
		WriteConflict(w, "Confirmation token is invalid or expired")
		return
	}

	if err := ed.Delete(r.Context(), gate.Always, id); err != nil {
		h.writeEditorError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"deleted": true}, nil)
}

// AdminTogglePublish flips the published flag.
func (h *Handler) AdminTogglePublish(w http.ResponseWriter, r *http.Request) {
	ed, ok := h.editors[chi.URLParam(r, "collection")]
	if !ok {
		WriteNotFound(w, "Unknown or read-only collection")
		return
	}

	published, err := ed.TogglePublished(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeEditorError(w, err)
		return
	}
	WriteSuccess(w, map[string]bool{"published": published}, nil)
}

// AdminNotifications returns the activity feed, newest first.
func (h *Handler) AdminNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.feed.List(r.Context(), limit)
	if err != nil {
		slog.Error("listing notifications", "error", err)
		WriteInternalError(w, "Could not read notifications")
		return
	}
	WriteSuccess(w, records, &Meta{Total: len(records)})
}

// AdminVolunteerStatus updates the review status of a volunteer
// application. Applications are submission-only, so this is the one
// admin-side mutation they support besides delete.
func (h *Handler) AdminVolunteerStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	status := strings.TrimSpace(body.Status)
	switch status {
	case "Pending", "Approved", "Declined":
	default:
		WriteValidationError(w, map[string]string{"status": "must be Pending, Approved, or Declined"})
		return
	}

	got, err := h.store.Get(r.Context(), "volunteers/"+id)
	if err != nil {
		WriteInternalError(w, "Could not read application")
		return
	}
	if got == nil {
		WriteNotFound(w, "Application not found")
		return
	}

	if err := h.store.Update(r.Context(), "volunteers/"+id, rtdb.Value{"status": status}); err != nil {
		WriteInternalError(w, "Could not update application")
		return
	}

	name, _ := got.(rtdb.Value)["name"].(string)
	_ = h.feed.Append(r.Context(), notify.TypeUpdated, "Volunteer application "+strings.ToLower(status)+": "+name)
	WriteSuccess(w, map[string]string{"status": status}, nil)
}

// readInput decodes a submission from either multipart form data (with an
// optional image file) or a flat JSON object.
func readInput(r *http.Request) (editor.Input, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return editor.Input{}, errors.New("invalid multipart form")
		}

		in := editor.Input{Fields: make(map[string]string)}
		for key, values := range r.MultipartForm.Value {
			if len(values) > 0 {
				in.Fields[key] = values[0]
			}
		}
		if file, _, err := r.FormFile("imageFile"); err == nil {
			in.ImageFile = file
		}
		return in, nil
	}

	var fields map[string]string
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(&fields); err != nil {
		return editor.Input{}, errors.New("invalid JSON body")
	}
	return editor.Input{Fields: fields}, nil
}

// writeEditorError maps editor failures onto the response envelope.
func (h *Handler) writeEditorError(w http.ResponseWriter, err error) {
	var verr editor.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteValidationError(w, verr)
	case errors.Is(err, editor.ErrBusy):
		WriteConflict(w, "Another submission is already in progress")
	case errors.Is(err, editor.ErrNotFound):
		WriteNotFound(w, "Record not found")
	case errors.Is(err, gate.ErrDeclined):
		WriteConflict(w, "Deletion was not confirmed")
	default:
		slog.Error("editor operation failed", "error", err)
		WriteInternalError(w, "Operation failed")
	}
}
