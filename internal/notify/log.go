// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package notify maintains the append-only activity log consumed by the
// dashboard feed. Every mutating operation on any entity appends a record
// here. Unlike the original tree, the log is capped: only the newest
// records are retained.
package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cfph/ngocms-go/internal/rtdb"
)

// Path is the shared collection all notifications are appended to.
const Path = "notifications"

// DefaultRetention is the number of records kept when no explicit retention
// is configured.
const DefaultRetention = 200

// Notification record types.
const (
	TypeAdded       = "added"
	TypeEdited      = "edited"
	TypeDeleted     = "deleted"
	TypeUpdated     = "updated"
	TypePublished   = "published"
	TypeUnpublished = "unpublished"
	TypeSystem      = "system"
)

// Notification is one feed entry. Time is epoch milliseconds, matching the
// records written by the original dashboard.
type Notification struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Time    int64  `json:"time"`
}

// Log appends to and reads from the shared notifications collection.
type Log struct {
	store     *rtdb.Store
	retention int

	mu  sync.Mutex
	now func() time.Time
}

// New creates a log with the given retention cap. A retention of zero or
// less falls back to DefaultRetention.
func New(store *rtdb.Store, retention int) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		store:     store,
		retention: retention,
		now:       time.Now,
	}
}

// Append writes one record and prunes anything beyond the retention cap.
// Callers must only append after the mutation they describe has succeeded;
// a failed mutation never produces a notification.
func (l *Log) Append(ctx context.Context, typ, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.store.PushChild(ctx, Path, rtdb.Value{
		"type":    typ,
		"message": message,
		"time":    l.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("appending notification: %w", err)
	}

	_, err = l.pruneLocked(ctx)
	return err
}

// List returns up to limit records, newest first. A limit of zero or less
// returns everything retained.
func (l *Log) List(ctx context.Context, limit int) ([]Notification, error) {
	snap, err := l.store.Get(ctx, Path)
	if err != nil {
		return nil, fmt.Errorf("reading notifications: %w", err)
	}

	records := decode(snap)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Prune drops records beyond the retention cap and reports how many were
// removed. It also runs on every append; this entry point exists for the
// nightly scheduler job.
func (l *Log) Prune(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pruneLocked(ctx)
}

func (l *Log) pruneLocked(ctx context.Context) (int, error) {
	snap, err := l.store.Get(ctx, Path)
	if err != nil {
		return 0, fmt.Errorf("reading notifications for prune: %w", err)
	}

	records := decode(snap)
	if len(records) <= l.retention {
		return 0, nil
	}

	removed := 0
	for _, rec := range records[l.retention:] {
		if err := l.store.Remove(ctx, Path+"/"+rec.ID); err != nil {
			return removed, fmt.Errorf("pruning notification %s: %w", rec.ID, err)
		}
		removed++
	}
	return removed, nil
}

// decode converts a collection snapshot into records sorted newest first.
func decode(snap any) []Notification {
	collection, _ := snap.(rtdb.Snapshot)
	records := make([]Notification, 0, len(collection))
	for id, rec := range collection {
		n := Notification{ID: id}
		if s, ok := rec["type"].(string); ok {
			n.Type = s
		}
		if s, ok := rec["message"].(string); ok {
			n.Message = s
		}
		switch t := rec["time"].(type) {
		case int64:
			n.Time = t
		case float64:
			n.Time = int64(t)
		}
		records = append(records, n)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Time != records[j].Time {
			return records[i].Time > records[j].Time
		}
		return records[i].ID > records[j].ID
	})
	return records
}
