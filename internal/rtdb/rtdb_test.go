package rtdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path       string
		collection string
		childID    string
		wantErr    bool
	}{
		{"blog", "blog", "", false},
		{"blog/abc", "blog", "abc", false},
		{"/faqs/", "faqs", "", false},
		{"EventsManager", "events", "", false},
		{"EventsManager/x1", "events", "x1", false},
		{"", "", "", true},
		{"a/b/c", "", "", true},
	}

	for _, tt := range tests {
		collection, childID, err := SplitPath(tt.path)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SplitPath(%q): expected error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Errorf("SplitPath(%q) error: %v", tt.path, err)
			continue
		}
		if collection != tt.collection || childID != tt.childID {
			t.Errorf("SplitPath(%q) = (%q, %q), want (%q, %q)",
				tt.path, collection, childID, tt.collection, tt.childID)
		}
	}
}

func TestPushChildAssignsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	payload := Value{"title": "A", "excerpt": "B", "author": "C", "published": false}
	id, err := s.PushChild(ctx, "blog", payload)
	if err != nil {
		t.Fatalf("PushChild error: %v", err)
	}
	if id == "" {
		t.Fatal("PushChild returned empty id")
	}

	snap, err := s.Get(ctx, "blog")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	collection, ok := snap.(Snapshot)
	if !ok {
		t.Fatalf("Get returned %T, want Snapshot", snap)
	}
	if len(collection) != 1 {
		t.Fatalf("collection has %d records, want 1", len(collection))
	}
	rec := collection[id]
	if rec == nil {
		t.Fatalf("record %s not found in collection", id)
	}
	for k, want := range payload {
		if rec[k] != want {
			t.Errorf("field %s = %v, want %v", k, rec[k], want)
		}
	}
}

func TestRemoveIsIdempotentAndTargeted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _ := s.PushChild(ctx, "faqs", Value{"question": "Q1", "answer": "A1"})
	id2, _ := s.PushChild(ctx, "faqs", Value{"question": "Q2", "answer": "A2"})

	if err := s.Remove(ctx, "faqs/"+id1); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	// Second delete of an already-removed id is a no-op, not an error.
	if err := s.Remove(ctx, "faqs/"+id1); err != nil {
		t.Fatalf("repeated Remove error: %v", err)
	}

	snap, _ := s.Get(ctx, "faqs")
	collection, _ := snap.(Snapshot)
	if len(collection) != 1 {
		t.Fatalf("collection has %d records, want 1", len(collection))
	}
	if collection[id2] == nil {
		t.Error("sibling record was removed")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _ := s.PushChild(ctx, "blog", Value{"title": "A", "published": false})

	if err := s.Update(ctx, "blog/"+id, Value{"published": true}); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := s.Get(ctx, "blog/"+id)
	rec, ok := got.(Value)
	if !ok {
		t.Fatalf("Get returned %T, want Value", got)
	}
	if rec["published"] != true {
		t.Errorf("published = %v, want true", rec["published"])
	}
	if rec["title"] != "A" {
		t.Errorf("title = %v, want A (unspecified fields must survive a merge)", rec["title"])
	}

	// Toggling twice returns the record to its original state.
	if err := s.Update(ctx, "blog/"+id, Value{"published": false}); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	got, _ = s.Get(ctx, "blog/"+id)
	if got.(Value)["published"] != false {
		t.Error("publish toggle did not round-trip")
	}
}

func TestSubscribeReceivesInitialAndChanges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snaps := make(chan any, 8)
	unsubscribe, err := s.Subscribe("media", func(snap any) { snaps <- snap })
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer unsubscribe()

	// Initial snapshot for an absent collection is nil.
	if snap := waitSnap(t, snaps); snap != nil {
		t.Fatalf("initial snapshot = %v, want nil", snap)
	}

	id, err := s.PushChild(ctx, "media", Value{"title": "Poster", "published": true})
	if err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	snap := waitSnap(t, snaps)
	collection, ok := snap.(Snapshot)
	if !ok || collection[id] == nil {
		t.Fatalf("change snapshot missing pushed record: %v", snap)
	}

	if err := s.Remove(ctx, "media/"+id); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if snap := waitSnap(t, snaps); snap != nil {
		t.Fatalf("snapshot after removing last record = %v, want nil", snap)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snaps := make(chan any, 8)
	unsubscribe, err := s.Subscribe("events", func(snap any) { snaps <- snap })
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	waitSnap(t, snaps) // initial

	unsubscribe()
	unsubscribe() // safe to call twice

	if _, err := s.PushChild(ctx, "events", Value{"title": "Gala"}); err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	select {
	case snap := <-snaps:
		t.Fatalf("received snapshot after unsubscribe: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeDropsBufferedSnapshots(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// The callback blocks so a change snapshot queues up in the subscriber
	// buffer while unsubscribe runs.
	calls := make(chan any, 8)
	release := make(chan struct{})
	unsubscribe, err := s.Subscribe("events", func(snap any) {
		calls <- snap
		<-release
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	waitSnap(t, calls) // initial, callback now blocked

	if _, err := s.PushChild(ctx, "events", Value{"title": "Gala"}); err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	unsubscribe()
	close(release)

	select {
	case snap := <-calls:
		t.Fatalf("buffered snapshot delivered after unsubscribe: %v", snap)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestLegacyEventsAlias(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.PushChild(ctx, "EventsManager", Value{"title": "Outreach"})
	if err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	got, err := s.Get(ctx, "events/"+id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil {
		t.Fatal("record pushed via legacy alias not visible under events")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "persist.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	id, err := s.PushChild(context.Background(), "programs", Value{"title": "Feeding", "published": true})
	if err != nil {
		t.Fatalf("PushChild error: %v", err)
	}
	s.Close()
	if err := db.Close(); err != nil {
		t.Fatalf("closing db: %v", err)
	}

	db2, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("reopening db: %v", err)
	}
	defer db2.Close()

	s2, err := Open(db2)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(context.Background(), "programs/"+id)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	rec, ok := got.(Value)
	if !ok || rec["title"] != "Feeding" {
		t.Fatalf("record not restored after reopen: %v", got)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := newTestStore(t)
	s.Close()

	if _, err := s.PushChild(context.Background(), "blog", Value{"title": "x"}); err != ErrClosed {
		t.Errorf("PushChild on closed store: err = %v, want ErrClosed", err)
	}
	if _, err := s.Subscribe("blog", func(any) {}); err != ErrClosed {
		t.Errorf("Subscribe on closed store: err = %v, want ErrClosed", err)
	}
}

func waitSnap(t *testing.T, ch chan any) any {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}
