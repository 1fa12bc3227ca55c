// Package objectstore implements C3: the mapping from a Volume to an
// object-store client, with a cache keyed by volume name and, for
// planner use, by scheme://host:port (spec §4.3).
package objectstore

import "context"

// Client is the minimal object-store surface the rest of the system
// needs: byte-range-free get/put/delete/append/list. Every Iceberg
// metadata read/write and every KV segment read/write goes through
// this interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	// Append adds data as a new object if key does not already exist,
	// or concatenates to it if it does. Segment-oriented callers (the
	// KV log store) rely on this to grow a segment without a
	// read-modify-write round trip when the backend supports it
	// natively (local/memory); S3-backed volumes fall back to
	// read-modify-write since S3 has no native append.
	Append(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	// List returns every object key with the given prefix, in
	// lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}
