// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package editor implements the shared create/edit/delete flow behind every
// dashboard manager page. One Editor per entity kind; the schema drives
// validation and payload construction, so the flow itself is generic.
//
// A failed validation writes nothing and notifies nobody. A concurrent
// submission against the same editor is rejected outright rather than
// queued; the dashboard disables its submit button for the same reason.
package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/cfph/ngocms-go/internal/gate"
	"github.com/cfph/ngocms-go/internal/imaging"
	"github.com/cfph/ngocms-go/internal/notify"
	"github.com/cfph/ngocms-go/internal/rtdb"
	"github.com/cfph/ngocms-go/internal/schema"
	"github.com/cfph/ngocms-go/internal/util"
)

// ErrBusy is returned when a submission arrives while another one is still
// in flight on the same editor.
var ErrBusy = errors.New("editor: submission already in flight")

// ErrNotFound is returned when editing or deleting a record that does not
// exist.
var ErrNotFound = errors.New("editor: record not found")

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// ValidationError maps field names to human-readable problems.
type ValidationError map[string]string

func (v ValidationError) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	return "validation failed: " + strings.Join(fields, ", ")
}

// Input is one form submission. ImageFile, when present, wins over any URL
// submitted in the image field.
type Input struct {
	Fields    map[string]string
	ImageFile io.Reader
}

// Editor runs the submission pipeline for one entity kind.
type Editor struct {
	store    *rtdb.Store
	feed     *notify.Log
	schema   schema.Schema
	inFlight gosync.Mutex
	now      func() time.Time
}

// New creates an editor for an editable kind.
func New(store *rtdb.Store, feed *notify.Log, sc schema.Schema) (*Editor, error) {
	if !sc.Editable {
		return nil, fmt.Errorf("collection %s is not editable", sc.Path)
	}
	return &Editor{
		store:  store,
		feed:   feed,
		schema: sc,
		now:    time.Now,
	}, nil
}

// Submit validates the input and creates (id == "") or updates a record.
// It returns the record id. The notification is appended only after the
// store write succeeded.
func (e *Editor) Submit(ctx context.Context, id string, in Input) (string, error) {
	if !e.inFlight.TryLock() {
		return "", ErrBusy
	}
	defer e.inFlight.Unlock()

	creating := id == ""
	payload, verr := e.buildPayload(in, creating)
	if len(verr) > 0 {
		return "", verr
	}

	if creating {
		newID, err := e.store.PushChild(ctx, e.schema.Path, payload)
		if err != nil {
			return "", fmt.Errorf("creating %s: %w", e.schema.Singular, err)
		}
		e.notify(ctx, notify.TypeAdded, "New %s added: %s", payload)
		return newID, nil
	}

	if err := e.requireExists(ctx, id); err != nil {
		return "", err
	}
	if err := e.store.Update(ctx, e.schema.Path+"/"+id, payload); err != nil {
		return "", fmt.Errorf("updating %s: %w", e.schema.Singular, err)
	}
	e.notify(ctx, notify.TypeEdited, "%[2]s (%[1]s) edited", payload)
	return id, nil
}

// Delete removes a record after the confirmer approves. A decline leaves
// the record in place and appends nothing to the feed.
func (e *Editor) Delete(ctx context.Context, confirmer gate.Confirmer, id string) error {
	if err := e.requireExists(ctx, id); err != nil {
		return err
	}

	label := e.recordLabel(ctx, id)
	prompt := fmt.Sprintf("Delete %s %q? This cannot be undone.", e.schema.Singular, label)

	return gate.Do(ctx, confirmer, prompt, func(ctx context.Context) error {
		if err := e.store.Remove(ctx, e.schema.Path+"/"+id); err != nil {
			return fmt.Errorf("deleting %s: %w", e.schema.Singular, err)
		}
		_ = e.feed.Append(ctx, notify.TypeDeleted,
			fmt.Sprintf("%s deleted: %s", capitalize(e.schema.Singular), label))
		return nil
	})
}

// TogglePublished flips the published flag and returns the new state.
func (e *Editor) TogglePublished(ctx context.Context, id string) (bool, error) {
	if !e.schema.HasPublished() {
		return false, fmt.Errorf("collection %s has no published flag", e.schema.Path)
	}
	if err := e.requireExists(ctx, id); err != nil {
		return false, err
	}

	got, err := e.store.Get(ctx, e.schema.Path+"/"+id)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", e.schema.Singular, err)
	}
	rec, _ := got.(rtdb.Value)
	published, _ := rec["published"].(bool)
	next := !published

	if err := e.store.Update(ctx, e.schema.Path+"/"+id, rtdb.Value{"published": next}); err != nil {
		return false, fmt.Errorf("toggling %s: %w", e.schema.Singular, err)
	}

	typ := notify.TypeUnpublished
	verb := "unpublished"
	if next {
		typ = notify.TypePublished
		verb = "published"
	}
	_ = e.feed.Append(ctx, typ,
		fmt.Sprintf("%s %s: %s", capitalize(e.schema.Singular), verb, e.recordLabel(ctx, id)))
	return next, nil
}

// buildPayload validates the raw input against the schema and produces the
// value to store. All problems are collected so the form can show every
// failing field at once.
func (e *Editor) buildPayload(in Input, creating bool) (rtdb.Value, ValidationError) {
	payload := rtdb.Value{}
	verr := ValidationError{}

	var imageResult *imaging.Result
	if in.ImageFile != nil {
		res, err := imaging.Process(in.ImageFile)
		if err != nil {
			verr[e.schema.ImageField()] = "uploaded file is not a supported image"
		} else {
			imageResult = res
		}
	}

	for _, f := range e.schema.Fields {
		if f.Internal {
			if creating && f.Default != nil {
				payload[f.Name] = f.Default
			}
			continue
		}

		raw, submitted := in.Fields[f.Name]
		raw = strings.TrimSpace(raw)

		if f.Type == schema.TypeImage && imageResult != nil {
			// An uploaded file wins over whatever URL was typed.
			payload[f.Name] = imageResult.DataURI
			continue
		}

		if raw == "" {
			switch {
			case f.Required:
				verr[f.Name] = "this field is required"
			case f.Type == schema.TypeDate && creating:
				payload[f.Name] = e.now().Format("2006-01-02")
			case creating && f.Default != nil:
				payload[f.Name] = f.Default
			case submitted && !creating:
				payload[f.Name] = ""
			}
			continue
		}

		value, problem := parseField(f, raw)
		if problem != "" {
			verr[f.Name] = problem
			continue
		}
		payload[f.Name] = value
	}

	if creating && e.schema.Slugged {
		if title, ok := payload["title"].(string); ok {
			payload["slug"] = util.Slugify(title)
		}
	}

	if len(verr) > 0 {
		return nil, verr
	}
	return payload, nil
}

// parseField converts a raw form value per the field type.
func parseField(f schema.Field, raw string) (any, string) {
	switch f.Type {
	case schema.TypeEmail:
		if !emailPattern.MatchString(raw) {
			return nil, "must be a valid email address"
		}
		return strings.ToLower(raw), ""
	case schema.TypeBool:
		switch strings.ToLower(raw) {
		case "true", "on", "1", "yes":
			return true, ""
		case "false", "off", "0", "no":
			return false, ""
		}
		return nil, "must be a boolean"
	case schema.TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, "must be a number"
		}
		return n, ""
	case schema.TypeDate:
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return nil, "must be a date in YYYY-MM-DD form"
		}
		return raw, ""
	default:
		return raw, ""
	}
}

func (e *Editor) requireExists(ctx context.Context, id string) error {
	got, err := e.store.Get(ctx, e.schema.Path+"/"+id)
	if err != nil {
		return fmt.Errorf("reading %s: %w", e.schema.Singular, err)
	}
	if got == nil {
		return ErrNotFound
	}
	return nil
}

// recordLabel fetches a display label for notifications, preferring the
// title field.
func (e *Editor) recordLabel(ctx context.Context, id string) string {
	got, err := e.store.Get(ctx, e.schema.Path+"/"+id)
	if err != nil {
		return id
	}
	rec, _ := got.(rtdb.Value)
	for _, key := range []string{"title", "question", "name", "email"} {
		if s, ok := rec[key].(string); ok && s != "" {
			return s
		}
	}
	return id
}

// notify appends a feed record for a successful mutation.
func (e *Editor) notify(ctx context.Context, typ, format string, payload rtdb.Value) {
	label := ""
	for _, key := range []string{"title", "question", "name", "email"} {
		if s, ok := payload[key].(string); ok && s != "" {
			label = s
			break
		}
	}
	_ = e.feed.Append(ctx, typ, fmt.Sprintf(format, e.schema.Singular, label))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
