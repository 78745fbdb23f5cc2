// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"log/slog"

	"github.com/cfph/ngocms-go/internal/rtdb"
)

// Invalidator clears cached public responses whenever the backing
// collection changes, so the public API never serves stale published
// content. One subscription per collection; the initial snapshot also
// clears, which is harmless.
type Invalidator struct {
	cache        Cacher
	unsubscribes []func()
}

// NewInvalidator subscribes to each collection and wires cache clearing.
func NewInvalidator(store *rtdb.Store, cache Cacher, collections []string) (*Invalidator, error) {
	inv := &Invalidator{cache: cache}

	for _, collection := range collections {
		prefix := collection + ":"
		unsubscribe, err := store.Subscribe(collection, func(any) {
			if err := cache.DeleteByPrefix(context.Background(), prefix); err != nil {
				slog.Warn("cache invalidation failed", "prefix", prefix, "error", err)
			}
		})
		if err != nil {
			inv.Close()
			return nil, err
		}
		inv.unsubscribes = append(inv.unsubscribes, unsubscribe)
	}

	return inv, nil
}

// Close drops all subscriptions.
func (inv *Invalidator) Close() {
	for _, unsubscribe := range inv.unsubscribes {
		unsubscribe()
	}
	inv.unsubscribes = nil
}

// Key builds a cache key in the collection-prefixed form the invalidator
// clears by.
func Key(collection, rest string) string {
	return collection + ":" + rest
}
