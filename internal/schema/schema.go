// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package schema declares the field layout of every collection in the tree.
// All dashboard pages share one generic synchronizer/editor pair; the only
// thing that differs per entity kind is its schema, including an explicit
// sort key and direction so list ordering is deterministic for every kind.
package schema

// FieldType enumerates the supported form field types.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeLongText FieldType = "longtext"
	TypeEmail    FieldType = "email"
	TypeBool     FieldType = "bool"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeImage    FieldType = "image"
)

// Field describes a single entity field.
type Field struct {
	Name     string
	Type     FieldType
	Required bool
	// Default is stored when the submitted value is empty. Date fields with
	// a nil default are stamped with the current date on creation.
	Default any
	// Internal fields are never taken from form input; they get their
	// default on creation and are only changed by dedicated operations.
	Internal bool
}

// Schema describes one entity kind.
type Schema struct {
	// Path is the collection path in the tree, bit-exact with the original
	// store so existing data keeps working.
	Path string
	// Singular is the human label used in notification messages.
	Singular string
	// Fields drives validation and payload construction in the form editor.
	Fields []Field
	// SortKey orders list views. Empty means ordering by record id, which is
	// stable but otherwise arbitrary.
	SortKey string
	// SortDesc sorts newest-first when the sort key is a date or timestamp.
	SortDesc bool
	// PublicRead exposes published records on the public API.
	PublicRead bool
	// Editable enables the admin form editor. Submission-only kinds
	// (volunteers, subscribers, contact messages) are written by the public
	// site and only listed in the dashboard.
	Editable bool
	// Slugged kinds get a URL slug derived from their title on creation.
	Slugged bool
}

// ImageField returns the name of the schema's image field, or "".
func (s Schema) ImageField() string {
	for _, f := range s.Fields {
		if f.Type == TypeImage {
			return f.Name
		}
	}
	return ""
}

// FieldByName returns the named field.
func (s Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasPublished reports whether the kind carries a published flag.
func (s Schema) HasPublished() bool {
	_, ok := s.FieldByName("published")
	return ok
}

// all lists every entity kind managed by the dashboard. Sort policies are
// intentionally per-kind: kinds with a date field list newest-first, the
// rest sort by id for stability.
var all = []Schema{
	{
		Path:     "blog",
		Singular: "blog post",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "excerpt", Type: TypeLongText, Required: true},
			{Name: "body", Type: TypeLongText},
			{Name: "author", Type: TypeText, Required: true},
			{Name: "imageUrl", Type: TypeImage},
			{Name: "date", Type: TypeDate},
			{Name: "published", Type: TypeBool, Default: false},
		},
		SortKey:    "date",
		SortDesc:   true,
		PublicRead: true,
		Editable:   true,
		Slugged:    true,
	},
	{
		Path:     "media",
		Singular: "media item",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "imageUrl", Type: TypeImage, Required: true},
			{Name: "published", Type: TypeBool, Default: false},
		},
		PublicRead: true,
		Editable:   true,
	},
	{
		Path:     "events",
		Singular: "event",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "date", Type: TypeDate, Required: true},
			{Name: "time", Type: TypeText},
			{Name: "location", Type: TypeText, Required: true},
			{Name: "description", Type: TypeLongText},
			{Name: "imageUrl", Type: TypeImage},
			{Name: "reminderCount", Type: TypeNumber, Default: float64(0), Internal: true},
			{Name: "published", Type: TypeBool, Default: false},
		},
		SortKey:    "date",
		SortDesc:   true,
		PublicRead: true,
		Editable:   true,
	},
	{
		Path:     "faqs",
		Singular: "FAQ",
		Fields: []Field{
			{Name: "question", Type: TypeText, Required: true},
			{Name: "answer", Type: TypeLongText, Required: true},
			{Name: "published", Type: TypeBool, Default: false},
		},
		PublicRead: true,
		Editable:   true,
	},
	{
		Path:     "testimonials",
		Singular: "testimonial",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "description", Type: TypeLongText, Required: true},
			{Name: "author", Type: TypeText, Required: true},
			{Name: "category", Type: TypeText},
			{Name: "published", Type: TypeBool, Default: false},
		},
		PublicRead: true,
		Editable:   true,
	},
	{
		Path:     "programs",
		Singular: "program",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "description", Type: TypeLongText, Required: true},
			{Name: "iconUrl", Type: TypeImage},
			{Name: "published", Type: TypeBool, Default: false},
		},
		PublicRead: true,
		Editable:   true,
		Slugged:    true,
	},
	{
		Path:     "eventHighlights",
		Singular: "event highlight",
		Fields: []Field{
			{Name: "title", Type: TypeText, Required: true},
			{Name: "date", Type: TypeDate},
			{Name: "imageUrl", Type: TypeImage, Required: true},
			{Name: "published", Type: TypeBool, Default: false},
		},
		SortKey:    "date",
		SortDesc:   true,
		PublicRead: true,
		Editable:   true,
	},
	{
		Path:     "volunteers",
		Singular: "volunteer application",
		Fields: []Field{
			{Name: "name", Type: TypeText, Required: true},
			{Name: "email", Type: TypeEmail, Required: true},
			{Name: "phone", Type: TypeText},
			{Name: "message", Type: TypeLongText},
			{Name: "status", Type: TypeText, Default: "Pending"},
			{Name: "submittedAt", Type: TypeDate},
		},
		SortKey:  "submittedAt",
		SortDesc: true,
	},
	{
		Path:     "newsletterSubscribers",
		Singular: "newsletter subscriber",
		Fields: []Field{
			{Name: "email", Type: TypeEmail, Required: true},
			{Name: "subscribedAt", Type: TypeDate},
		},
		SortKey:  "subscribedAt",
		SortDesc: true,
	},
	{
		Path:     "messages",
		Singular: "message",
		Fields: []Field{
			{Name: "name", Type: TypeText, Required: true},
			{Name: "email", Type: TypeEmail, Required: true},
			{Name: "subject", Type: TypeText},
			{Name: "message", Type: TypeLongText, Required: true},
			{Name: "sentAt", Type: TypeDate},
		},
		SortKey:  "sentAt",
		SortDesc: true,
	},
}

// All returns every declared schema.
func All() []Schema {
	return all
}

// ByPath returns the schema for a collection path.
func ByPath(path string) (Schema, bool) {
	for _, s := range all {
		if s.Path == path {
			return s, true
		}
	}
	return Schema{}, false
}
