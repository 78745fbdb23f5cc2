// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"fmt"

	"github.com/alexedwards/scs/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/cfph/ngocms-go/internal/auth"
	"github.com/cfph/ngocms-go/internal/cache"
	"github.com/cfph/ngocms-go/internal/editor"
	"github.com/cfph/ngocms-go/internal/gate"
	"github.com/cfph/ngocms-go/internal/mailer"
	"github.com/cfph/ngocms-go/internal/middleware"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
	"github.com/cfph/ngocms-go/internal/session"
	"github.com/cfph/ngocms-go/internal/sync"
)

// PaymentConfig holds the client-facing payment gateway values served to
// the donation page.
type PaymentConfig struct {
	PublicKey    string `json:"publicKey"`
	ContractCode string `json:"contractCode"`
}

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	store    *rtdb.Store
	feed     *notify.Log
	sessions *scs.SessionManager
	tracker  *session.Tracker
	auth     *auth.Authenticator
	protect  *middleware.LoginProtection
	cache    cache.Cacher
	mailer   *mailer.Mailer
	tokens   *gate.Tokens
	payment  PaymentConfig

	editors map[string]*editor.Editor
	syncs   map[string]*sync.Synchronizer

	markdown goldmark.Markdown
	sanitize *bluemonday.Policy
}

// Options carries everything the handler needs. Mailer may be nil when SMTP
// is not configured; the newsletter endpoint then reports the relay as
// unavailable.
type Options struct {
	Store    *rtdb.Store
	Feed     *notify.Log
	Sessions *scs.SessionManager
	Tracker  *session.Tracker
	Auth     *auth.Authenticator
	Protect  *middleware.LoginProtection
	Cache    cache.Cacher
	Mailer   *mailer.Mailer
	Payment  PaymentConfig
}

// New builds the handler, one synchronizer per collection and one editor
// per editable collection.
func New(opts Options) (*Handler, error) {
	h := &Handler{
		store:    opts.Store,
		feed:     opts.Feed,
		sessions: opts.Sessions,
		tracker:  opts.Tracker,
		auth:     opts.Auth,
		protect:  opts.Protect,
		cache:    opts.Cache,
		mailer:   opts.Mailer,
		tokens:   gate.NewTokens(0),
		payment:  opts.Payment,
		editors:  make(map[string]*editor.Editor),
		syncs:    make(map[string]*sync.Synchronizer),
		markdown: goldmark.New(goldmark.WithRendererOptions(gmhtml.WithHardWraps())),
		sanitize: bluemonday.UGCPolicy(),
	}

	for _, sc := range schema.All() {
		s, err := sync.New(opts.Store, sc)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("starting synchronizer for %s: %w", sc.Path, err)
		}
		h.syncs[sc.Path] = s

		if sc.Editable {
			ed, err := editor.New(opts.Store, opts.Feed, sc)
			if err != nil {
				h.Close()
				return nil, fmt.Errorf("creating editor for %s: %w", sc.Path, err)
			}
			h.editors[sc.Path] = ed
		}
	}

	return h, nil
}

// Close tears down the synchronizers.
func (h *Handler) Close() {
	for _, s := range h.syncs {
		s.Close()
	}
}
