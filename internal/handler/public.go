// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cfph/ngocms-go/internal/cache"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
	"github.com/cfph/ngocms-go/internal/sync"
)

var publicEmailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// publicCacheTTL bounds how long a public response can outlive its data. The
// invalidator clears entries on every collection change, but an invalidation
// landing between snapshot and cache write would otherwise pin a stale body
// for the cache's default TTL.
var publicCacheTTL = time.Minute

// PublicList serves the published records of a public collection. Responses
// are cached; the invalidator clears them when the collection changes.
func (h *Handler) PublicList(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	sc, ok := schema.ByPath(collection)
	if !ok || !sc.PublicRead {
		WriteNotFound(w, "Unknown collection")
		return
	}

	key := cache.Key(collection, "list")
	if cached, err := h.cache.Get(r.Context(), key); err == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	items, loading := h.syncs[collection].Snapshot()
	if loading {
		// Fall back to a direct read rather than serving an empty list
		// during startup.
		snap, err := h.store.Get(r.Context(), collection)
		if err != nil {
			WriteInternalError(w, "Could not read collection")
			return
		}
		col, _ := snap.(rtdb.Snapshot)
		items = sync.Sort(col, sc)
	}

	published := make([]sync.Entity, 0, len(items))
	for _, it := range items {
		if it.Fields["published"] == true {
			published = append(published, it)
		}
	}

	body, err := json.Marshal(Response{Data: published, Meta: &Meta{Total: len(published)}})
	if err != nil {
		WriteInternalError(w, "Could not encode response")
		return
	}
	_ = h.cache.Set(r.Context(), key, body, publicCacheTTL)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// PublicBlogPost serves one published post by id or slug, with the markdown
// body rendered to sanitized HTML.
func (h *Handler) PublicBlogPost(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	key := cache.Key("blog", "item:"+ref)
	if cached, err := h.cache.Get(r.Context(), key); err == nil {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(cached)
		return
	}

	entity, found := h.findBlogPost(r.Context(), ref)
	if !found || entity.Fields["published"] != true {
		WriteNotFound(w, "Post not found")
		return
	}

	post := make(rtdb.Value, len(entity.Fields)+2)
	for k, v := range entity.Fields {
		post[k] = v
	}
	post["id"] = entity.ID
	if body, ok := entity.Fields["body"].(string); ok && body != "" {
		var buf bytes.Buffer
		if err := h.markdown.Convert([]byte(body), &buf); err != nil {
			slog.Error("rendering blog body", "id", entity.ID, "error", err)
		} else {
			post["bodyHtml"] = h.sanitize.Sanitize(buf.String())
		}
	}

	body, err := json.Marshal(Response{Data: post})
	if err != nil {
		WriteInternalError(w, "Could not encode response")
		return
	}
	_ = h.cache.Set(r.Context(), key, body, publicCacheTTL)

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (h *Handler) findBlogPost(ctx context.Context, ref string) (sync.Entity, bool) {
	items, loading := h.syncs["blog"].Snapshot()
	if loading {
		snap, err := h.store.Get(ctx, "blog")
		if err != nil {
			return sync.Entity{}, false
		}
		col, _ := snap.(rtdb.Snapshot)
		sc, _ := schema.ByPath("blog")
		items = sync.Sort(col, sc)
	}

	for _, it := range items {
		if it.ID == ref || it.Fields["slug"] == ref {
			return it, true
		}
	}
	return sync.Entity{}, false
}

// Subscribe adds a newsletter subscriber. Resubmitting a known address is
// reported as success without creating a duplicate.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	email := strings.ToLower(strings.TrimSpace(body.Email))
	if !publicEmailPattern.MatchString(email) {
		WriteValidationError(w, map[string]string{"email": "must be a valid email address"})
		return
	}

	snap, err := h.store.Get(r.Context(), "newsletterSubscribers")
	if err != nil {
		WriteInternalError(w, "Could not read subscribers")
		return
	}
	if col, _ := snap.(rtdb.Snapshot); col != nil {
		for _, rec := range col {
			if rec["email"] == email {
				WriteSuccess(w, map[string]bool{"subscribed": true}, nil)
				return
			}
		}
	}

	_, err = h.store.PushChild(r.Context(), "newsletterSubscribers", rtdb.Value{
		"email":        email,
		"subscribedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		WriteInternalError(w, "Could not save subscription")
		return
	}
	_ = h.feed.Append(r.Context(), notify.TypeAdded, "New newsletter subscriber: "+email)
	WriteCreated(w, map[string]bool{"subscribed": true})
}

// VolunteerApply stores a volunteer application from the public site.
func (h *Handler) VolunteerApply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	problems := map[string]string{}
	if strings.TrimSpace(body.Name) == "" {
		problems["name"] = "this field is required"
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if !publicEmailPattern.MatchString(email) {
		problems["email"] = "must be a valid email address"
	}
	if len(problems) > 0 {
		WriteValidationError(w, problems)
		return
	}

	_, err := h.store.PushChild(r.Context(), "volunteers", rtdb.Value{
		"name":        strings.TrimSpace(body.Name),
		"email":       email,
		"phone":       strings.TrimSpace(body.Phone),
		"message":     strings.TrimSpace(body.Message),
		"status":      "Pending",
		"submittedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		WriteInternalError(w, "Could not save application")
		return
	}
	_ = h.feed.Append(r.Context(), notify.TypeAdded, "New volunteer application: "+strings.TrimSpace(body.Name))
	WriteCreated(w, map[string]bool{"submitted": true})
}

// Contact stores a contact form message.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	problems := map[string]string{}
	if strings.TrimSpace(body.Name) == "" {
		problems["name"] = "this field is required"
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if !publicEmailPattern.MatchString(email) {
		problems["email"] = "must be a valid email address"
	}
	if strings.TrimSpace(body.Message) == "" {
		problems["message"] = "this field is required"
	}
	if len(problems) > 0 {
		WriteValidationError(w, problems)
		return
	}

	_, err := h.store.PushChild(r.Context(), "messages", rtdb.Value{
		"name":    strings.TrimSpace(body.Name),
		"email":   email,
		"subject": strings.TrimSpace(body.Subject),
		"message": strings.TrimSpace(body.Message),
		"sentAt":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		WriteInternalError(w, "Could not save message")
		return
	}
	_ = h.feed.Append(r.Context(), notify.TypeAdded, "New message from "+strings.TrimSpace(body.Name))
	WriteCreated(w, map[string]bool{"sent": true})
}

// EventRemind increments the reminder counter on a published event.
func (h *Handler) EventRemind(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	got, err := h.store.Get(r.Context(), "events/"+id)
	if err != nil {
		WriteInternalError(w, "Could not read event")
		return
	}
	rec, _ := got.(rtdb.Value)
	if rec == nil || rec["published"] != true {
		WriteNotFound(w, "Event not found")
		return
	}

	count := float64(0)
	switch c := rec["reminderCount"].(type) {
	case float64:
		count = c
	case int64:
		count = float64(c)
	}
	count++

	if err := h.store.Update(r.Context(), "events/"+id, rtdb.Value{"reminderCount": count}); err != nil {
		WriteInternalError(w, "Could not update event")
		return
	}

	// Reminder requests are also recorded individually so a future mailing
	// can pick them up.
	if _, err := h.store.PushChild(r.Context(), "eventReminders", rtdb.Value{
		"eventId":       id,
		"reminderSetAt": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		slog.Error("recording event reminder", "event", id, "error", err)
	}

	WriteSuccess(w, map[string]float64{"reminderCount": count}, nil)
}

// PaymentConfig exposes the client-facing payment gateway values to the
// donation page. The public key and contract code are publishable; no
// secrets live here.
func (h *Handler) PaymentConfig(w http.ResponseWriter, _ *http.Request) {
	if h.payment.PublicKey == "" {
		WriteNotFound(w, "Payments are not configured")
		return
	}
	WriteSuccess(w, h.payment, nil)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Root serves the legacy liveness message the public site polls for.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Newsletter API is running"))
}
