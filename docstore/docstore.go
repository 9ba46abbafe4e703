// Package docstore defines the versioned document store contract the
// authentication core persists through, plus in-memory, Redis, and DynamoDB
// implementations of it.
//
// Every persisted entity is wrapped in a Document carrying an optimistic
// version number. A write must supply the version it read; the store rejects
// the write with ErrVersionConflict when the stored version has moved on.
// Version 0 additionally means "must not already exist", which is how
// uniqueness constraints (one credential record per email) are enforced.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrVersionConflict is returned when a conditional write loses: either the
// supplied version no longer matches the stored one, or a version-0 write
// found an existing document.
var ErrVersionConflict = errors.New("docstore: document version conflict")

// Document is the unit of persistence. Payload is opaque JSON; use Encode and
// Decode to move typed entities in and out of it.
type Document struct {
	Collection string
	Key        string
	Payload    json.RawMessage
	Version    int64

	// IndexPartition and IndexSort place the document on the store's
	// secondary index. Documents with an empty IndexPartition are not
	// indexed and never show up in QueryIndex results.
	IndexPartition string
	IndexSort      int64

	// ExpiresAt is an epoch-seconds time-to-live hint, 0 for no expiry.
	ExpiresAt int64
}

// Store is the capability interface consumed by the engine. Implementations
// must enforce the version-match / must-not-exist semantics described on
// Document and make TransactPut all-or-nothing.
type Store interface {
	// Get returns the document stored under (collection, key), reporting
	// absence through the second return value rather than an error.
	Get(ctx context.Context, collection, key string) (Document, bool, error)

	// Put writes the document conditionally on doc.Version and returns the
	// stored form with the version advanced.
	Put(ctx context.Context, doc Document) (Document, error)

	// TransactPut applies every write or none, each under its own version
	// condition. Any failed condition aborts the whole batch with
	// ErrVersionConflict.
	TransactPut(ctx context.Context, docs ...Document) error

	// QueryIndex returns up to limit documents from the secondary index
	// partition, ordered by IndexSort.
	QueryIndex(ctx context.Context, collection, indexPartition string, descending bool, limit int) ([]Document, error)
}

// Encode wraps a typed payload into a fresh version-0 document.
func Encode[T any](collection, key string, payload T) (Document, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Collection: collection,
		Key:        key,
		Payload:    raw,
	}, nil
}

// Decode unmarshals the document payload into T.
func Decode[T any](doc Document) (T, error) {
	var v T
	err := json.Unmarshal(doc.Payload, &v)
	return v, err
}

// SetPayload replaces the document payload in place, keeping version and
// index placement so the caller can hand the result straight back to Put.
func (d *Document) SetPayload(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	d.Payload = raw
	return nil
}
