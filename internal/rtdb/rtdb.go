// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rtdb implements the realtime document tree backing the dashboard
// and the public site. It is a two-level hierarchical key-value store
// (collection -> child id -> record) with push-based subscriptions: every
// subscriber to an affected path receives the full current value at that
// path, initial snapshot included.
package rtdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Value is a single record stored at a child path.
type Value = map[string]any

// Snapshot is what a collection subscriber receives: the full mapping from
// child id to record, or nil when the collection is absent.
type Snapshot = map[string]Value

// legacyAliases maps historical collection names to their current ones.
// The events collection was originally written under "EventsManager".
var legacyAliases = map[string]string{
	"EventsManager": "events",
}

// Store is the realtime tree. All exported methods are safe for concurrent
// use. Mutations are written through to SQLite before subscribers are
// notified, so a notified snapshot is always durable.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	data   map[string]map[string]Value
	subs   map[string]map[int64]*subscriber
	nextID int64
	closed bool
}

// subscriber delivers snapshots to one callback on a dedicated goroutine.
// The channel is buffered; when a slow consumer falls behind, the oldest
// pending snapshot is dropped in favour of the newest (wholesale-replacement
// semantics make intermediate snapshots redundant).
type subscriber struct {
	ch   chan any
	done chan struct{}
}

const subscriberBuffer = 16

// Open loads the tree from the given database. The database must already be
// migrated (see Migrate).
func Open(db *sql.DB) (*Store, error) {
	s := &Store{
		db:   db,
		data: make(map[string]map[string]Value),
		subs: make(map[string]map[int64]*subscriber),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load reads every persisted node into the in-memory mirror.
func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT collection, child_id, value FROM nodes`)
	if err != nil {
		return fmt.Errorf("loading nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection, childID, raw string
		if err := rows.Scan(&collection, &childID, &raw); err != nil {
			return fmt.Errorf("scanning node: %w", err)
		}
		var v Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return fmt.Errorf("decoding node %s/%s: %w", collection, childID, err)
		}
		if s.data[collection] == nil {
			s.data[collection] = make(map[string]Value)
		}
		s.data[collection][childID] = v
	}
	return rows.Err()
}

// SplitPath splits a tree path into collection and child id. The child id is
// empty for a collection path. Legacy collection names are resolved to their
// current equivalents.
func SplitPath(path string) (collection, childID string, err error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", "", fmt.Errorf("empty path")
	}
	parts := strings.SplitN(path, "/", 2)
	collection = parts[0]
	if alias, ok := legacyAliases[collection]; ok {
		collection = alias
	}
	if len(parts) == 2 {
		if parts[1] == "" || strings.Contains(parts[1], "/") {
			return "", "", fmt.Errorf("invalid path %q: at most two levels", path)
		}
		childID = parts[1]
	}
	return collection, childID, nil
}

// Get returns the current value at path: a Snapshot for a collection path,
// a Value for a child path, or nil when the node is absent.
func (s *Store) Get(_ context.Context, path string) (any, error) {
	collection, childID, err := SplitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if childID == "" {
		return copyCollection(s.data[collection]), nil
	}
	rec, ok := s.data[collection][childID]
	if !ok {
		return nil, nil
	}
	return copyValue(rec), nil
}

// PushChild creates a new child under the given collection path with a
// store-assigned unique id, and returns that id. Ids are never supplied by
// the caller and never change.
func (s *Store) PushChild(ctx context.Context, path string, value Value) (string, error) {
	collection, childID, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	if childID != "" {
		return "", fmt.Errorf("push target %q must be a collection path", path)
	}

	id := uuid.NewString()
	rec := copyValue(value)
	if rec == nil {
		rec = Value{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	if err := s.persist(ctx, collection, id, rec); err != nil {
		return "", err
	}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Value)
	}
	s.data[collection][id] = rec

	s.notifyLocked(collection, id)
	return id, nil
}

// Update merges the patch into the record at the given child path without
// removing unspecified fields. A missing record is created, matching the
// merge semantics of the original tree.
func (s *Store) Update(ctx context.Context, path string, patch Value) error {
	collection, childID, err := SplitPath(path)
	if err != nil {
		return err
	}
	if childID == "" {
		return fmt.Errorf("update target %q must be a child path", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	rec := copyValue(s.data[collection][childID])
	if rec == nil {
		rec = Value{}
	}
	for k, v := range patch {
		rec[k] = v
	}

	if err := s.persist(ctx, collection, childID, rec); err != nil {
		return err
	}
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]Value)
	}
	s.data[collection][childID] = rec

	s.notifyLocked(collection, childID)
	return nil
}

// Remove deletes the node at path and all its descendants. Removing an
// absent node is a no-op, so repeated deletes are idempotent.
func (s *Store) Remove(ctx context.Context, path string) error {
	collection, childID, err := SplitPath(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if childID == "" {
		if len(s.data[collection]) == 0 {
			return nil
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM nodes WHERE collection = ?`, collection); err != nil {
			return fmt.Errorf("removing collection %s: %w", collection, err)
		}
		delete(s.data, collection)
		s.notifyLocked(collection, "")
		return nil
	}

	if _, ok := s.data[collection][childID]; !ok {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM nodes WHERE collection = ? AND child_id = ?`, collection, childID); err != nil {
		return fmt.Errorf("removing node %s/%s: %w", collection, childID, err)
	}
	delete(s.data[collection], childID)
	if len(s.data[collection]) == 0 {
		delete(s.data, collection)
	}

	s.notifyLocked(collection, childID)
	return nil
}

// Subscribe registers a listener for the value at path. The callback is
// invoked with the full current value immediately and again on every change,
// always from a single goroutine owned by the subscription. The returned
// function cancels the subscription; it must be called on teardown so no
// callback fires after the consumer is gone.
func (s *Store) Subscribe(path string, fn func(snapshot any)) (func(), error) {
	collection, childID, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	key := collection
	if childID != "" {
		key = collection + "/" + childID
	}

	sub := &subscriber{
		ch:   make(chan any, subscriberBuffer),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.nextID++
	id := s.nextID
	if s.subs[key] == nil {
		s.subs[key] = make(map[int64]*subscriber)
	}
	s.subs[key][id] = sub
	sub.enqueue(s.snapshotLocked(collection, childID))
	s.mu.Unlock()

	go func() {
		for {
			// Cancellation wins over snapshots still sitting in the buffer;
			// once unsubscribe has returned the callback must not fire again.
			select {
			case <-sub.done:
				return
			default:
			}
			select {
			case snap := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				fn(snap)
			case <-sub.done:
				return
			}
		}
	}()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			if subs, ok := s.subs[key]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(s.subs, key)
				}
			}
			s.mu.Unlock()
			close(sub.done)
		})
	}
	return unsubscribe, nil
}

// Close stops all subscriptions. The underlying database handle is owned by
// the caller and is not closed here.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, subs := range s.subs {
		for id, sub := range subs {
			close(sub.done)
			delete(subs, id)
		}
		delete(s.subs, key)
	}
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = fmt.Errorf("rtdb: store is closed")

// persist writes a single node. Caller holds the write lock.
func (s *Store) persist(ctx context.Context, collection, childID string, rec Value) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding node %s/%s: %w", collection, childID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (collection, child_id, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, child_id)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		collection, childID, string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("persisting node %s/%s: %w", collection, childID, err)
	}
	return nil
}

// notifyLocked fans the current snapshots out to collection subscribers and,
// when childID is set, to subscribers of that child. Caller holds the lock.
func (s *Store) notifyLocked(collection, childID string) {
	for _, sub := range s.subs[collection] {
		sub.enqueue(s.snapshotLocked(collection, ""))
	}
	if childID != "" {
		key := collection + "/" + childID
		for _, sub := range s.subs[key] {
			sub.enqueue(s.snapshotLocked(collection, childID))
		}
	}
}

// snapshotLocked builds the value a subscriber of the given path should see.
func (s *Store) snapshotLocked(collection, childID string) any {
	if childID == "" {
		return collectionOrNil(s.data[collection])
	}
	rec, ok := s.data[collection][childID]
	if !ok {
		return nil
	}
	return copyValue(rec)
}

// enqueue hands a snapshot to the delivery goroutine without ever blocking a
// writer. On a full buffer the oldest pending snapshot is discarded.
func (sub *subscriber) enqueue(snap any) {
	for {
		select {
		case sub.ch <- snap:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

func copyValue(v Value) Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func copyCollection(c map[string]Value) Snapshot {
	if c == nil {
		return nil
	}
	out := make(Snapshot, len(c))
	for id, rec := range c {
		out[id] = copyValue(rec)
	}
	return out
}

// collectionOrNil returns nil for an empty or absent collection so that
// subscribers can tell "nothing here" apart from a populated mapping, the
// same way the original tree reported non-existent snapshots.
func collectionOrNil(c map[string]Value) any {
	if len(c) == 0 {
		return nil
	}
	return copyCollection(c)
}
