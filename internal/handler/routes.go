// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/cfph/ngocms-go/internal/middleware"
)

// RouteOptions configures the router.
type RouteOptions struct {
	CSRFKey       []byte
	IsDev         bool
	AllowedOrigin string
	// SubmitRate limits public submission endpoints per IP.
	SubmitRate  float64
	SubmitBurst int
}

// Routes builds the full router: public content API, submission endpoints,
// the newsletter relay, and the session-protected admin API.
func (h *Handler) Routes(opts RouteOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.sessions.LoadAndSave)
	if opts.AllowedOrigin != "" {
		r.Use(corsMiddleware(opts.AllowedOrigin))
	}

	csrfProtect := middleware.CSRF(middleware.DefaultCSRFConfig(opts.CSRFKey, opts.IsDev))

	if opts.SubmitRate <= 0 {
		opts.SubmitRate = 1
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 5
	}
	submitLimiter := middleware.NewGlobalRateLimiter(opts.SubmitRate, opts.SubmitBurst)

	r.Get("/", h.Root)
	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		// CSRF covers the whole API. The public submission endpoints are
		// called cross-origin from the website, so they opt out and rely
		// on the rate limiter instead.
		r.Use(middleware.SkipCSRF(
			"/api/subscribe",
			"/api/volunteer",
			"/api/contact",
			"/api/sendNewsletter",
			"/api/events/",
		))
		r.Use(csrfProtect)

		// Session endpoints. Login is rate limited per IP on top of the
		// account lockout inside the handler.
		r.With(h.protect.Middleware()).Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)

		// Newsletter relay, path preserved for the existing dashboard.
		r.Get("/sendNewsletter", h.NewsletterStatus)
		r.With(submitLimiter.Middleware()).Post("/sendNewsletter", h.SendNewsletter)

		// Public submissions.
		r.Group(func(r chi.Router) {
			r.Use(submitLimiter.Middleware())
			r.Post("/subscribe", h.Subscribe)
			r.Post("/volunteer", h.VolunteerApply)
			r.Post("/contact", h.Contact)
			r.Post("/events/{id}/remind", h.EventRemind)
		})

		r.Get("/payment-config", h.PaymentConfig)

		// Admin API.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.sessions, h.tracker))

			r.Get("/notifications", h.AdminNotifications)
			r.Post("/volunteers/{id}/status", h.AdminVolunteerStatus)
			r.Get("/stream/{collection}", h.AdminStream)

			r.Get("/{collection}", h.AdminList)
			r.Post("/{collection}", h.AdminCreate)
			r.Put("/{collection}/{id}", h.AdminUpdate)
			r.Delete("/{collection}/{id}", h.AdminDelete)
			r.Post("/{collection}/{id}/publish", h.AdminTogglePublish)
		})

		// Public published-only reads, after the static routes above.
		r.Get("/blog/{ref}", h.PublicBlogPost)
		r.Get("/{collection}", h.PublicList)
	})

	return r
}

// corsMiddleware allows the public site origin to call the API from the
// browser. Only one origin is ever needed.
func corsMiddleware(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
