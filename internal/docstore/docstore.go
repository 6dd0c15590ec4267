// Package docstore is a thin document-store abstraction: insert-one,
// find-one/find-many with equality filters, set-fields update and delete-one.
// Documents are structs carrying both bson and json tags; every collection
// keys documents by a string "id" field rather than the store's native key.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no document matches a filter.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate document")
)

// Filter matches documents whose top-level fields equal the given strings.
type Filter map[string]string

// Fields is the set of top-level fields written by UpdateOne.
type Fields map[string]any

// FindOptions controls Find ordering and size.
type FindOptions struct {
	SortField string
	SortDesc  bool
	Limit     int64
}

// Collection is a named set of documents.
type Collection interface {
	InsertOne(ctx context.Context, doc any) error
	// FindOne decodes the first matching document into out, leaving the
	// omitted fields unset.
	FindOne(ctx context.Context, filter Filter, out any, omit ...string) error
	// Find decodes every matching document into out, which must point to a
	// slice.
	Find(ctx context.Context, filter Filter, opts FindOptions, out any) error
	// UpdateOne sets fields on the first matching document and reports how
	// many documents matched.
	UpdateOne(ctx context.Context, filter Filter, set Fields) (int64, error)
	// DeleteOne removes the first matching document and reports how many
	// were deleted.
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
}

// Index describes a secondary index on a collection.
type Index struct {
	Keys   []string
	Unique bool
}

// Database is a handle to a document database.
type Database interface {
	Collection(name string) Collection
	EnsureIndex(ctx context.Context, collection string, index Index) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
