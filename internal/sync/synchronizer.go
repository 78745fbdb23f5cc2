// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sync keeps an ordered in-memory list mirrored to a collection
// subscription. One Synchronizer serves each entity kind; list views and
// SSE streams read from it instead of hitting the tree per request.
package sync

import (
	"fmt"
	"sort"
	gosync "sync"

	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
)

// Entity is one list item: the store-assigned id plus the record fields.
type Entity struct {
	ID     string     `json:"id"`
	Fields rtdb.Value `json:"fields"`
}

// Synchronizer mirrors one collection. A loading flag distinguishes "not
// yet loaded" from "loaded and empty"; the two look identical as a slice
// but render differently (spinner vs. explicit no-data state).
type Synchronizer struct {
	schema      schema.Schema
	unsubscribe func()

	mu        gosync.RWMutex
	items     []Entity
	loading   bool
	listeners map[int64]chan []Entity
	nextID    int64
	closed    bool
}

// New subscribes to the schema's collection and starts mirroring it. Close
// must be called on teardown.
func New(store *rtdb.Store, sc schema.Schema) (*Synchronizer, error) {
	s := &Synchronizer{
		schema:    sc,
		loading:   true,
		listeners: make(map[int64]chan []Entity),
	}

	unsubscribe, err := store.Subscribe(sc.Path, s.apply)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", sc.Path, err)
	}
	s.unsubscribe = unsubscribe
	return s, nil
}

// apply replaces the list wholesale from a collection snapshot. There is no
// incremental diffing: every remote change rebuilds the ordered list.
func (s *Synchronizer) apply(snap any) {
	var collection rtdb.Snapshot
	if snap != nil {
		collection, _ = snap.(rtdb.Snapshot)
	}

	items := Sort(collection, s.schema)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.items = items
	s.loading = false
	for _, ch := range s.listeners {
		// Lossy send: a listener that has not drained the previous list
		// only cares about the newest one anyway.
		select {
		case ch <- items:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- items:
			default:
			}
		}
	}
	s.mu.Unlock()
}

// Snapshot returns the current ordered list and whether the first remote
// snapshot is still pending.
func (s *Synchronizer) Snapshot() (items []Entity, loading bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, len(s.items))
	copy(out, s.items)
	return out, s.loading
}

// Listen registers a channel that receives the full list after every remote
// change. The returned cancel function must be called when the consumer
// goes away.
func (s *Synchronizer) Listen() (<-chan []Entity, func()) {
	ch := make(chan []Entity, 1)

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = ch
	if !s.loading {
		ch <- append([]Entity(nil), s.items...)
	}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close unsubscribes from the store. No list updates are applied afterwards.
func (s *Synchronizer) Close() {
	s.unsubscribe()
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int64]chan []Entity)
	s.mu.Unlock()
}

// Sort converts a collection snapshot into the ordered list for the given
// schema. Kinds without a sort key order by id: arbitrary but stable, which
// the store's own enumeration order is not.
func Sort(collection rtdb.Snapshot, sc schema.Schema) []Entity {
	items := make([]Entity, 0, len(collection))
	for id, rec := range collection {
		items = append(items, Entity{ID: id, Fields: rec})
	}

	key := sc.SortKey
	sort.Slice(items, func(i, j int) bool {
		if key != "" {
			a := sortableString(items[i].Fields[key])
			b := sortableString(items[j].Fields[key])
			if a != b {
				if sc.SortDesc {
					return a > b
				}
				return a < b
			}
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// sortableString renders a field value for ordering. Dates are ISO strings
// and compare lexicographically; numeric timestamps are zero-padded so the
// same holds.
func sortableString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%020.0f", t)
	case int64:
		return fmt.Sprintf("%020d", t)
	default:
		return fmt.Sprint(t)
	}
}
