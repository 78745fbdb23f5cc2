// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"sync"
	"time"
)

// Tracker records last-activity times for logged-in sessions. The cookie
// layer enforces the idle timeout per request; the tracker backs the
// periodic sweep that reports sessions which went idle without a final
// request, so the activity gauge in the dashboard stays honest.
type Tracker struct {
	mu      sync.Mutex
	last    map[string]time.Time
	timeout time.Duration
	now     func() time.Time
}

// NewTracker creates a tracker with the given idle timeout. A non-positive
// timeout falls back to IdleTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = IdleTimeout
	}
	return &Tracker{
		last:    make(map[string]time.Time),
		timeout: timeout,
		now:     time.Now,
	}
}

// Touch marks the session active now. Called on every authenticated request.
func (t *Tracker) Touch(token string) {
	t.mu.Lock()
	t.last[token] = t.now()
	t.mu.Unlock()
}

// Forget drops a session from tracking, on logout.
func (t *Tracker) Forget(token string) {
	t.mu.Lock()
	delete(t.last, token)
	t.mu.Unlock()
}

// Active reports whether the session has been touched within the timeout.
func (t *Tracker) Active(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.last[token]
	return ok && t.now().Sub(at) <= t.timeout
}

// Sweep removes idle sessions from tracking and returns their tokens.
func (t *Tracker) Sweep() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []string
	now := t.now()
	for token, at := range t.last {
		if now.Sub(at) > t.timeout {
			expired = append(expired, token)
			delete(t.last, token)
		}
	}
	return expired
}

// Count returns the number of currently tracked (non-idle) sessions.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
