// Package store provides the document-store adapter the engine is written
// against. The production implementation sits on GORM; tests run the same
// implementation on sqlite.
package store

import (
	"context"
	"time"
)

// Collection names understood by the adapter
const (
	Users         = "users"
	Posts         = "posts"
	Notifications = "notifications"
)

// Op is a filter comparison operator
type Op string

const (
	OpEq  Op = "="
	OpIn  Op = "in"
	OpLt  Op = "<"
	OpGt  Op = ">"
	OpLte Op = "<="
	OpGte Op = ">="
)

// Filter constrains a query to documents whose field matches the value
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Order is one column of a compound sort
type Order struct {
	Field string
	Desc  bool
}

// Keyset excludes rows at or before a position in a descending compound
// order. Fields and Values align positionally; rows compare field by
// field, so ties on earlier fields fall through to later ones.
type Keyset struct {
	Fields []string
	Values []interface{}
}

// Query describes a bounded, ordered scan over a collection
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int

	// OrderBys applies a compound sort; takes precedence over OrderBy.
	OrderBys []Order

	// After restricts results to rows strictly past the keyset position
	// under the query's descending order.
	After Keyset

	// Pluck selects distinct values of a single column into out
	// (a *[]string) instead of whole documents.
	Pluck string
}

// Change event kinds
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// ChangeEvent announces a mutation on a collection. Delivery is
// at-least-once; consumers must tolerate re-delivery of the same event.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	DocID      string    `json:"doc_id"`
	Kind       string    `json:"kind"`
	At         time.Time `json:"at"`
}

// DocumentStore is the persistence contract for the engine. Array-valued
// fields are mutated per element; implementations must never replace a
// whole array on behalf of Add/Remove/Append.
type DocumentStore interface {
	// Get loads a document by id into out. Missing documents yield a
	// NOT_FOUND error.
	Get(ctx context.Context, collection, id string, out interface{}) error

	// GetForUpdate is Get with a row lock; only meaningful inside Tx.
	GetForUpdate(ctx context.Context, collection, id string, out interface{}) error

	// Query loads matching documents into out (a pointer to a slice).
	Query(ctx context.Context, collection string, q Query, out interface{}) error

	// Create inserts a document.
	Create(ctx context.Context, collection string, doc interface{}) error

	// Update applies a partial field update to a document.
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error

	// UpdateWhere applies a partial field update to every matching document.
	UpdateWhere(ctx context.Context, collection string, filters []Filter, fields map[string]interface{}) error

	// Delete removes a document.
	Delete(ctx context.Context, collection, id string) error

	// AtomicArrayAdd inserts value into a string-set field if absent.
	// Returns true when the element was actually added.
	AtomicArrayAdd(ctx context.Context, collection, id, field, value string) (bool, error)

	// AtomicArrayRemove deletes value from a string-set field if present.
	// Returns true when the element was actually removed.
	AtomicArrayRemove(ctx context.Context, collection, id, field, value string) (bool, error)

	// AtomicArrayAppend appends an object to a JSON array field. Unlike
	// AtomicArrayAdd it does not deduplicate.
	AtomicArrayAppend(ctx context.Context, collection, id, field string, value interface{}) error

	// AtomicIncrement adds delta to a numeric field in place.
	AtomicIncrement(ctx context.Context, collection, id, field string, delta int64) error

	// Tx runs fn inside a transaction. Change events raised inside fn are
	// published only after the transaction commits.
	Tx(ctx context.Context, fn func(DocumentStore) error) error

	// Subscribe returns a channel of change events for a collection and a
	// cancel func. An empty collection subscribes to everything.
	Subscribe(collection string) (<-chan ChangeEvent, func())
}
