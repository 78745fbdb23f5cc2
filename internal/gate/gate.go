// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gate guards destructive operations behind an explicit
// confirmation step. Nothing runs until the confirmer says yes; a decline
// leaves the tree untouched and produces no notification.
package gate

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrDeclined is returned when the confirmer rejects the prompt. The guarded
// action has not run.
var ErrDeclined = errors.New("gate: declined")

// Confirmer answers a yes/no prompt before a destructive action runs.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Always approves every prompt. Used for pre-confirmed API requests where
// the client has already shown its own dialog.
var Always = ConfirmerFunc(func(context.Context, string) (bool, error) {
	return true, nil
})

// Do asks the confirmer and runs action only on approval. The action runs
// zero times on decline or confirmer error.
func Do(ctx context.Context, c Confirmer, prompt string, action func(ctx context.Context) error) error {
	ok, err := c.Confirm(ctx, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return ErrDeclined
	}
	return action(ctx)
}

// Tokens implements the two-request HTTP confirmation flow: the first
// request issues a short-lived token along with the prompt, the second
// request presents the token to actually run the action. Tokens are single
// use and bound to the target they were issued for, so a token confirming
// one record can never authorize an action on another.
type Tokens struct {
	mu     sync.Mutex
	ttl    time.Duration
	tokens map[string]tokenEntry
	now    func() time.Time
}

type tokenEntry struct {
	prompt  string
	target  string
	expires time.Time
}

// NewTokens creates a token issuer. A non-positive ttl defaults to one
// minute.
func NewTokens(ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Tokens{
		ttl:    ttl,
		tokens: make(map[string]tokenEntry),
		now:    time.Now,
	}
}

// Issue records a pending confirmation for the given target and returns its
// token.
func (t *Tokens) Issue(prompt, target string) string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	token := hex.EncodeToString(buf)

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, e := range t.tokens {
		if now.After(e.expires) {
			delete(t.tokens, k)
		}
	}
	t.tokens[token] = tokenEntry{prompt: prompt, target: target, expires: now.Add(t.ttl)}
	return token
}

// Redeem consumes a token. It reports false for unknown, expired, or
// already-redeemed tokens, and for tokens issued for a different target.
// A mismatched target still consumes the token.
func (t *Tokens) Redeem(token, target string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.tokens[token]
	if !ok {
		return false
	}
	delete(t.tokens, token)
	if e.target != target {
		return false
	}
	return !t.now().After(e.expires)
}
