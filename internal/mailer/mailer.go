// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mailer relays newsletter broadcasts to subscribers over SMTP.
// HTML bodies are sanitized before sending; subscriber-facing mail must not
// carry scripts even if an editor pastes them in.
package mailer

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/gomail.v2"
)

// ErrNotConfigured is returned when SMTP settings are absent.
var ErrNotConfigured = errors.New("mailer: SMTP not configured")

// Sender delivers a prepared message. Satisfied by gomail's Dialer; tests
// substitute a recorder.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds SMTP settings for the relay.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Mailer sends sanitized HTML mail to lists of recipients.
type Mailer struct {
	sender   Sender
	from     string
	sanitize *bluemonday.Policy
}

// New creates a mailer backed by a real SMTP dialer.
func New(cfg Config) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, ErrNotConfigured
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	return NewWithSender(d, cfg.From), nil
}

// NewWithSender creates a mailer with a custom sender.
func NewWithSender(sender Sender, from string) *Mailer {
	return &Mailer{
		sender:   sender,
		from:     from,
		sanitize: bluemonday.UGCPolicy(),
	}
}

// Send delivers the HTML body to every recipient. Recipients go on BCC so
// subscribers never see each other's addresses. Returns the number of
// recipients addressed.
func (m *Mailer) Send(subject, html string, recipients []string) (int, error) {
	recipients = cleanRecipients(recipients)
	if subject == "" || html == "" || len(recipients) == 0 {
		return 0, errors.New("subject, body, and at least one recipient are required")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", m.from)
	msg.SetHeader("Bcc", recipients...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", m.sanitize.Sanitize(html))

	if err := m.sender.DialAndSend(msg); err != nil {
		return 0, fmt.Errorf("sending newsletter: %w", err)
	}

	slog.Info("newsletter sent", "subject", subject, "recipients", len(recipients))
	return len(recipients), nil
}

// cleanRecipients trims and drops empty entries.
func cleanRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}
