// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cfph/ngocms-go/internal/rtdb"
)

// LoginsPath is the collection holding admin accounts.
const LoginsPath = "logins"

// ErrInvalidCredentials is returned for every failed login, whether the
// account is unknown or the password is wrong. Callers must not distinguish
// the two cases in responses.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Account is one admin login record.
type Account struct {
	ID    string
	Email string
}

// Authenticator checks submitted credentials against the logins collection.
type Authenticator struct {
	store *rtdb.Store
}

func NewAuthenticator(store *rtdb.Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate returns the matched account, or ErrInvalidCredentials.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	snap, err := a.store.Get(ctx, LoginsPath)
	if err != nil {
		return Account{}, fmt.Errorf("reading accounts: %w", err)
	}
	collection, _ := snap.(rtdb.Snapshot)

	for id, rec := range collection {
		storedEmail, _ := rec["email"].(string)
		if !strings.EqualFold(storedEmail, email) {
			continue
		}
		hash, _ := rec["passwordHash"].(string)
		ok, err := CheckPassword(password, hash)
		if err != nil || !ok {
			return Account{}, ErrInvalidCredentials
		}
		return Account{ID: id, Email: storedEmail}, nil
	}
	return Account{}, ErrInvalidCredentials
}

// CreateAccount hashes the password and stores a new admin login. Used by
// the startup seed when the collection is empty.
func (a *Authenticator) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", errors.New("email and password are required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}

	id, err := a.store.PushChild(ctx, LoginsPath, rtdb.Value{
		"email":        email,
		"passwordHash": hash,
	})
	if err != nil {
		return "", fmt.Errorf("storing account: %w", err)
	}
	return id, nil
}

// HasAccounts reports whether any admin login exists.
func (a *Authenticator) HasAccounts(ctx context.Context) (bool, error) {
	snap, err := a.store.Get(ctx, LoginsPath)
	if err != nil {
		return false, fmt.Errorf("reading accounts: %w", err)
	}
	collection, _ := snap.(rtdb.Snapshot)
	return len(collection) > 0, nil
}
