package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
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

func mustSchema(t *testing.T, path string) schema.Schema {
	t.Helper()
	sc, ok := schema.ByPath(path)
	if !ok {
		t.Fatalf("schema %s not found", path)
	}
	return sc
}

func TestLoadingBecomesEmptyState(t *testing.T) {
	store := newTestStore(t)

	s, err := New(store, mustSchema(t, "faqs"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	// The initial (nil) snapshot must flip loading off so an empty
	// collection renders as "no data", not as a spinner.
	waitFor(t, func() bool {
		items, loading := s.Snapshot()
		return !loading && len(items) == 0
	}, "synchronizer never left the loading state")
}

func TestListMirrorsCollection(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s, err := New(store, mustSchema(t, "faqs"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	id, err := store.PushChild(ctx, "faqs", rtdb.Value{"question": "Q", "answer": "A", "published": true})
	if err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	waitFor(t, func() bool {
		items, loading := s.Snapshot()
		return !loading && len(items) == 1 && items[0].ID == id
	}, "pushed record never reached the list")

	if err := store.Remove(ctx, "faqs/"+id); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	waitFor(t, func() bool {
		items, _ := s.Snapshot()
		return len(items) == 0
	}, "removed record never left the list")
}

func TestSortNewestFirstByDate(t *testing.T) {
	sc := mustSchema(t, "blog")

	collection := rtdb.Snapshot{
		"a": {"title": "old", "date": "2024-01-02"},
		"b": {"title": "new", "date": "2025-06-30"},
		"c": {"title": "mid", "date": "2024-11-11"},
	}
	items := Sort(collection, sc)

	got := []string{}
	for _, it := range items {
		got = append(got, it.Fields["title"].(string))
	}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sort order = %v, want %v", got, want)
		}
	}
}

func TestSortByIDWhenNoSortKey(t *testing.T) {
	sc := mustSchema(t, "faqs")

	collection := rtdb.Snapshot{
		"zz": {"question": "3"},
		"aa": {"question": "1"},
		"mm": {"question": "2"},
	}
	items := Sort(collection, sc)

	if items[0].ID != "aa" || items[1].ID != "mm" || items[2].ID != "zz" {
		t.Fatalf("id ordering not stable: %v, %v, %v", items[0].ID, items[1].ID, items[2].ID)
	}
}

func TestListenReceivesUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s, err := New(store, mustSchema(t, "media"))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer s.Close()

	ch, cancel := s.Listen()
	defer cancel()

	if _, err := store.PushChild(ctx, "media", rtdb.Value{"title": "Poster", "published": true}); err != nil {
		t.Fatalf("PushChild error: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case items := <-ch:
			if len(items) == 1 && items[0].Fields["title"] == "Poster" {
				return
			}
		case <-deadline:
			t.Fatal("listener never received the pushed record")
		}
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
