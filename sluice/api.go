// Package sluice provides a query client for telemetry records ("pings")
// stored in dimension-partitioned object storage.
//
// Sluice focuses on query description: datasets, dimension conditions, and
// partition resolution. It does not implement storage or a distributed
// execution engine, and it does not own the record wire format; stores,
// executors, and decoders are pluggable.
package sluice

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Metadata holds string-keyed attributes attached to a record.
type Metadata map[string]any

// Ping is one decoded telemetry record.
//
// Meta carries the dimension values the record was found under plus
// object-store bookkeeping ("key" and "size"), merged over any metadata the
// decoder itself produced. Payload is the decoded record body, or the
// selected alias-to-value map when a projection is configured.
type Ping struct {
	Meta    Metadata
	Payload map[string]any
}

// ObjectSummary describes a single stored object.
type ObjectSummary struct {
	// Key is the full object key.
	Key string

	// Size is the object size in bytes.
	Size int64
}

// Partition is one fully resolved partition path.
type Partition struct {
	// Prefix is the object-key prefix formed by the resolved values,
	// including the dataset prefix and a trailing slash.
	Prefix string

	// Values holds the resolved dimension values in schema order.
	Values []string
}

// Condition filters candidate values for a single dimension.
//
// A condition sees the raw path component for its level, without the
// trailing slash. Conditions must be safe for concurrent use.
type Condition interface {
	// Match reports whether the candidate value passes the condition.
	Match(value string) bool

	// String describes the condition for diagnostics.
	String() string
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system.
//
// Implementations may target filesystems, S3-compatible services, or
// in-memory maps. Listing follows object-store conventions: ListObjects
// returns every key under the prefix, ListPrefixes returns only the
// immediate child prefixes (delimiter "/"), each with a trailing slash.
type Store interface {
	// Put writes data to the given key.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get retrieves data from the given key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the key if it exists.
	Delete(ctx context.Context, key string) error

	// ListObjects returns all objects under the given prefix,
	// in lexicographic key order.
	ListObjects(ctx context.Context, prefix string) ([]ObjectSummary, error)

	// ListPrefixes returns the immediate child prefixes under the given
	// prefix, in lexicographic order.
	ListPrefixes(ctx context.Context, prefix string) ([]string, error)
}

// StoreFactory opens a Store for a named bucket. It is used where bucket
// names are discovered at runtime, such as source catalogs.
type StoreFactory func(bucket string) (Store, error)

// -----------------------------------------------------------------------------
// Decoder interface
// -----------------------------------------------------------------------------

// Decoder turns one stored object into records.
//
// Decoders are pluggable and orthogonal to storage and compression. A decode
// error fails the whole object; the records pipeline skips and counts failed
// objects rather than aborting the query.
type Decoder interface {
	// Name returns the decoder identifier (for example, "jsonl" or "parquet").
	Name() string

	// Decode reads all records from the given reader.
	Decode(r io.Reader) ([]Ping, error)
}

// -----------------------------------------------------------------------------
// Executor interface
// -----------------------------------------------------------------------------

// Executor runs per-item work with implementation-owned parallelism.
//
// The query core only describes work items; all parallel listing, fetching,
// and decoding runs through an Executor.
type Executor interface {
	// Map invokes fn for every index in [0, n). The first error cancels
	// remaining work and is returned.
	Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error

	// Concurrency returns the number of items the executor may run at once.
	Concurrency() int
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrNotFound indicates a requested object does not exist.
	ErrNotFound = errNotFound{}

	// ErrKeyExists indicates an attempt to write to an existing key.
	ErrKeyExists = errKeyExists{}
)

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errKeyExists struct{}

func (errKeyExists) Error() string { return "key exists" }
