// Package rawdb provides the byte key-value persistence layer of the
// execution core: the store interfaces, an in-memory implementation with
// atomic batches, the database schema, typed accessors for chain data,
// header chain-gap tracking, and a nested-checkpoint journal overlay.
package rawdb

import "errors"

var (
	// ErrNotFound is returned when a key is absent from the database.
	ErrNotFound = errors.New("rawdb: key not found")

	// ErrBatchWritten is returned when a batch is written twice.
	ErrBatchWritten = errors.New("rawdb: batch already written")

	// ErrHeaderNotFound signals a header lookup the caller asserted would
	// succeed; it indicates corruption or a programmer error and is never
	// silently recovered.
	ErrHeaderNotFound = errors.New("rawdb: header not found")
)

// Database is the byte key-value store every persistent structure is
// built on.
type Database interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)

	// NewBatch returns a write batch that defers all mutations until
	// Write is called, applying them atomically.
	NewBatch() Batch
}

// Batch accumulates writes and applies them atomically.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error

	// Write atomically applies the accumulated operations. A batch may
	// be written at most once.
	Write() error

	// Reset discards accumulated operations so the batch can be reused.
	Reset()
}
