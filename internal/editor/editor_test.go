package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cfph/ngocms-go/internal/gate"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
)

func newTestEnv(t *testing.T, path string) (*rtdb.Store, *notify.Log, *Editor) {
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
	t.Cleanup(store.Close)

	feed := notify.New(store, 50)
	sc, ok := schema.ByPath(path)
	if !ok {
		t.Fatalf("schema %s not found", path)
	}
	ed, err := New(store, feed, sc)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return store, feed, ed
}

func feedLen(t *testing.T, feed *notify.Log) int {
	t.Helper()
	records, err := feed.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	return len(records)
}

func TestCreateAppliesDefaultsAndSlug(t *testing.T) {
	store, feed, ed := newTestEnv(t, "blog")
	ed.now = func() time.Time { return time.Date(2026, 5, 17, 10, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"title":   "Clean Water Drive",
		"excerpt": "A summary.",
		"author":  "Jane",
	}})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	got, _ := store.Get(ctx, "blog/"+id)
	rec := got.(rtdb.Value)
	if rec["published"] != false {
		t.Errorf("published default = %v, want false", rec["published"])
	}
	if rec["date"] != "2026-05-17" {
		t.Errorf("date default = %v, want today", rec["date"])
	}
	if rec["slug"] != "clean-water-drive" {
		t.Errorf("slug = %v", rec["slug"])
	}

	if n := feedLen(t, feed); n != 1 {
		t.Errorf("feed has %d records after create, want 1", n)
	}
}

func TestMissingRequiredFieldWritesNothing(t *testing.T) {
	store, feed, ed := newTestEnv(t, "faqs")
	ctx := context.Background()

	_, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"question": "What do you do?",
		// answer missing
	}})

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := verr["answer"]; !ok {
		t.Errorf("validation error missing answer field: %v", verr)
	}

	snap, _ := store.Get(ctx, "faqs")
	if snap != nil {
		t.Error("failed submission wrote to the store")
	}
	if n := feedLen(t, feed); n != 0 {
		t.Errorf("failed submission produced %d notifications, want 0", n)
	}
}

func TestWhitespaceOnlyCountsAsMissing(t *testing.T) {
	_, _, ed := newTestEnv(t, "faqs")

	_, err := ed.Submit(context.Background(), "", Input{Fields: map[string]string{
		"question": "   ",
		"answer":   "An answer.",
	}})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if _, ok := verr["question"]; !ok {
		t.Errorf("whitespace-only required field passed validation: %v", verr)
	}
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	_, _, ed := newTestEnv(t, "faqs")

	ed.inFlight.Lock()
	defer ed.inFlight.Unlock()

	_, err := ed.Submit(context.Background(), "", Input{Fields: map[string]string{
		"question": "Q", "answer": "A",
	}})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy while another submission is in flight", err)
	}
}

func TestEditMergesFields(t *testing.T) {
	store, feed, ed := newTestEnv(t, "faqs")
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"question": "Original?", "answer": "Yes.",
	}})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	if _, err := ed.Submit(ctx, id, Input{Fields: map[string]string{
		"question": "Updated?", "answer": "Yes.",
	}}); err != nil {
		t.Fatalf("edit error: %v", err)
	}

	got, _ := store.Get(ctx, "faqs/"+id)
	rec := got.(rtdb.Value)
	if rec["question"] != "Updated?" {
		t.Errorf("question = %v", rec["question"])
	}

	if n := feedLen(t, feed); n != 2 {
		t.Errorf("feed has %d records, want 2 (create + edit)", n)
	}
}

func TestEditUnknownRecord(t *testing.T) {
	_, _, ed := newTestEnv(t, "faqs")

	_, err := ed.Submit(context.Background(), "no-such-id", Input{Fields: map[string]string{
		"question": "Q", "answer": "A",
	}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeclinedDeleteChangesNothing(t *testing.T) {
	store, feed, ed := newTestEnv(t, "faqs")
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"question": "Q", "answer": "A",
	}})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	before := feedLen(t, feed)

	decline := gate.ConfirmerFunc(func(context.Context, string) (bool, error) { return false, nil })
	if err := ed.Delete(ctx, decline, id); !errors.Is(err, gate.ErrDeclined) {
		t.Fatalf("err = %v, want ErrDeclined", err)
	}

	got, _ := store.Get(ctx, "faqs/"+id)
	if got == nil {
		t.Error("record deleted despite declined confirmation")
	}
	if n := feedLen(t, feed); n != before {
		t.Errorf("declined delete appended %d notifications", n-before)
	}
}

func TestConfirmedDeleteRemovesAndNotifies(t *testing.T) {
	store, feed, ed := newTestEnv(t, "faqs")
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"question": "Q", "answer": "A",
	}})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	before := feedLen(t, feed)

	if err := ed.Delete(ctx, gate.Always, id); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	got, _ := store.Get(ctx, "faqs/"+id)
	if got != nil {
		t.Error("record survived confirmed delete")
	}
	if n := feedLen(t, feed); n != before+1 {
		t.Errorf("feed grew by %d, want 1", n-before)
	}
}

func TestTogglePublishedRoundTrips(t *testing.T) {
	store, _, ed := newTestEnv(t, "faqs")
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"question": "Q", "answer": "A",
	}})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}

	state, err := ed.TogglePublished(ctx, id)
	if err != nil {
		t.Fatalf("TogglePublished error: %v", err)
	}
	if !state {
		t.Fatal("first toggle should publish")
	}

	state, err = ed.TogglePublished(ctx, id)
	if err != nil {
		t.Fatalf("TogglePublished error: %v", err)
	}
	if state {
		t.Fatal("second toggle should unpublish")
	}

	got, _ := store.Get(ctx, "faqs/"+id)
	if got.(rtdb.Value)["published"] != false {
		t.Error("published flag did not round-trip")
	}
}

func TestImageFileWinsOverURL(t *testing.T) {
	store, _, ed := newTestEnv(t, "media")
	ctx := context.Background()

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	id, err := ed.Submit(ctx, "", Input{
		Fields: map[string]string{
			"title":    "Poster",
			"imageUrl": "https://example.org/poster.png",
		},
		ImageFile: &buf,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	got, _ := store.Get(ctx, "media/"+id)
	url, _ := got.(rtdb.Value)["imageUrl"].(string)
	if !strings.HasPrefix(url, "data:image/") {
		t.Errorf("imageUrl = %.40s, want inline data URI when a file is uploaded", url)
	}
}

func TestImageURLUsedWithoutFile(t *testing.T) {
	store, _, ed := newTestEnv(t, "media")
	ctx := context.Background()

	id, err := ed.Submit(ctx, "", Input{Fields: map[string]string{
		"title":    "Poster",
		"imageUrl": "https://example.org/poster.png",
	}})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	got, _ := store.Get(ctx, "media/"+id)
	if got.(rtdb.Value)["imageUrl"] != "https://example.org/poster.png" {
		t.Errorf("imageUrl = %v", got.(rtdb.Value)["imageUrl"])
	}
}

func TestBadImageUploadWritesNothing(t *testing.T) {
	store, _, ed := newTestEnv(t, "media")
	ctx := context.Background()

	_, err := ed.Submit(ctx, "", Input{
		Fields:    map[string]string{"title": "Poster"},
		ImageFile: strings.NewReader("not an image"),
	})
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	snap, _ := store.Get(ctx, "media")
	if snap != nil {
		t.Error("failed image upload wrote to the store")
	}
}

func TestParseFieldTypes(t *testing.T) {
	tests := []struct {
		field   schema.Field
		raw     string
		want    any
		problem bool
	}{
		{schema.Field{Name: "email", Type: schema.TypeEmail}, "User@Example.ORG", "user@example.org", false},
		{schema.Field{Name: "email", Type: schema.TypeEmail}, "not-an-email", nil, true},
		{schema.Field{Name: "published", Type: schema.TypeBool}, "true", true, false},
		{schema.Field{Name: "published", Type: schema.TypeBool}, "banana", nil, true},
		{schema.Field{Name: "count", Type: schema.TypeNumber}, "41.5", 41.5, false},
		{schema.Field{Name: "count", Type: schema.TypeNumber}, "many", nil, true},
		{schema.Field{Name: "date", Type: schema.TypeDate}, "2026-02-30", nil, true},
		{schema.Field{Name: "date", Type: schema.TypeDate}, "2026-03-30", "2026-03-30", false},
	}

	for _, tt := range tests {
		got, problem := parseField(tt.field, tt.raw)
		if tt.problem {
			if problem == "" {
				t.Errorf("parseField(%s, %q): expected problem", tt.field.Type, tt.raw)
			}
			continue
		}
		if problem != "" {
			t.Errorf("parseField(%s, %q): unexpected problem %q", tt.field.Type, tt.raw, problem)
			continue
		}
		if got != tt.want {
			t.Errorf("parseField(%s, %q) = %v, want %v", tt.field.Type, tt.raw, got, tt.want)
		}
	}
}

func TestNewRejectsSubmissionOnlyKinds(t *testing.T) {
	db, err := rtdb.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB error: %v", err)
	}
	defer db.Close()
	if err := rtdb.Migrate(db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	store, err := rtdb.Open(db)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer store.Close()

	sc, _ := schema.ByPath("volunteers")
	if _, err := New(store, notify.New(store, 50), sc); err == nil {
		t.Fatal("editor created for a submission-only kind")
	}
}
