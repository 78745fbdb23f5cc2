package scheduler

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/session"
)

func newTestFeed(t *testing.T) (*notify.Log, *rtdb.Store) {
	t.Helper()

	db, err := rtdb.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := rtdb.Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	store, err := rtdb.Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return notify.New(store, 5), store
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartStop(t *testing.T) {
	feed, _ := newTestFeed(t)
	s := New(feed, session.NewTracker(session.IdleTimeout), quietLogger())

	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("registered jobs = %d, want 2", got)
	}
	s.Stop()
}

func TestSweepRecordsExpiredSessions(t *testing.T) {
	feed, _ := newTestFeed(t)
	tracker := session.NewTracker(time.Nanosecond)
	s := New(feed, tracker, quietLogger())

	tracker.Touch("token-a")
	tracker.Touch("token-b")
	time.Sleep(5 * time.Millisecond)

	s.sweepSessions()

	if tracker.Count() != 0 {
		t.Errorf("active sessions after sweep = %d, want 0", tracker.Count())
	}
	records, err := feed.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("feed records = %d, want 1", len(records))
	}
	if records[0].Type != notify.TypeSystem {
		t.Errorf("record type = %q, want %q", records[0].Type, notify.TypeSystem)
	}
}

func TestSweepWithNothingExpired(t *testing.T) {
	feed, _ := newTestFeed(t)
	s := New(feed, session.NewTracker(time.Hour), quietLogger())

	s.sweepSessions()

	records, err := feed.List(context.Background(), 10)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("feed records = %d, want 0", len(records))
	}
}

func TestPruneFeedEnforcesRetention(t *testing.T) {
	feed, store := newTestFeed(t)
	ctx := context.Background()

	// Write past the cap directly so the per-append prune is bypassed.
	for i := 0; i < 8; i++ {
		if _, err := store.PushChild(ctx, notify.Path, rtdb.Value{
			"type":    notify.TypeSystem,
			"message": "old entry",
			"time":    int64(1000 + i),
		}); err != nil {
			t.Fatalf("PushChild error: %v", err)
		}
	}

	s := New(feed, session.NewTracker(session.IdleTimeout), quietLogger())
	s.pruneFeed()

	records, err := feed.List(ctx, 100)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 5 {
		t.Errorf("records after prune = %d, want 5", len(records))
	}
}
