package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfph/ngocms-go/internal/rtdb"
)

func newTestStore(t *testing.T) *rtdb.Store {
	t.Helper()

	db, err := rtdb.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := rtdb.Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	s, err := rtdb.Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestAppendAndListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	log := New(store, 10)

	// Deterministic clock so ordering does not depend on wall time.
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	log.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := log.Append(ctx, TypeAdded, fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	records, err := log.List(ctx, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List returned %d records, want 3", len(records))
	}
	if records[0].Message != "entry 3" || records[2].Message != "entry 1" {
		t.Fatalf("records not newest first: %q .. %q", records[0].Message, records[2].Message)
	}
	if records[0].Type != TypeAdded {
		t.Errorf("type = %q, want %q", records[0].Type, TypeAdded)
	}
	if records[0].Time != base.Add(3*time.Second).UnixMilli() {
		t.Errorf("time = %d, want epoch milliseconds of third append", records[0].Time)
	}
}

func TestListHonorsLimit(t *testing.T) {
	store := newTestStore(t)
	log := New(store, 50)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.Append(ctx, TypeEdited, fmt.Sprintf("edit %d", i)); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	records, err := log.List(ctx, 2)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List returned %d records, want 2", len(records))
	}
}

func TestRetentionCapOnAppend(t *testing.T) {
	store := newTestStore(t)
	log := New(store, 5)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	log.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for i := 1; i <= 12; i++ {
		if err := log.Append(ctx, TypeDeleted, fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatalf("Append error: %v", err)
		}
	}

	records, err := log.List(ctx, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("retained %d records, want 5", len(records))
	}
	// The survivors are the newest five.
	if records[0].Message != "entry 12" || records[4].Message != "entry 8" {
		t.Fatalf("wrong survivors: newest %q oldest %q", records[0].Message, records[4].Message)
	}
}

func TestPruneReportsRemoved(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Seed directly so the per-append prune never runs.
	for i := 0; i < 8; i++ {
		_, err := store.PushChild(ctx, Path, rtdb.Value{
			"type":    TypeSystem,
			"message": fmt.Sprintf("seed %d", i),
			"time":    int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("PushChild error: %v", err)
		}
	}

	log := New(store, 3)
	removed, err := log.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if removed != 5 {
		t.Fatalf("Prune removed %d, want 5", removed)
	}

	removed, err = log.Prune(ctx)
	if err != nil {
		t.Fatalf("second Prune error: %v", err)
	}
	if removed != 0 {
		t.Fatalf("second Prune removed %d, want 0", removed)
	}
}

func TestZeroRetentionFallsBack(t *testing.T) {
	log := New(newTestStore(t), 0)
	if log.retention != DefaultRetention {
		t.Fatalf("retention = %d, want %d", log.retention, DefaultRetention)
	}
}
