// Copyright (c) CrossCloud ID contributors.
// Licensed under the MIT license.

/*
Package cache allows third parties to implement external storage for caching
token data, for distributed systems or multiple local applications access.

The data stored and extracted will represent the entire cache. Therefore it is
recommended one client instance per user. The data is considered opaque and
there are no guarantees to implementers on the format being passed.
*/
package cache

import "context"

// Marshaler marshals data from an internal cache to bytes that can be stored.
type Marshaler interface {
	Marshal() ([]byte, error)
}

// Unmarshaler unmarshals data from a storage medium into the internal cache,
// overwriting it.
type Unmarshaler interface {
	Unmarshal([]byte) error
}

// Serializer can serialize the cache to binary or from binary into the cache.
type Serializer interface {
	Marshaler
	Unmarshaler
}

// ExportReplace is used to export or replace what is in the cache. It must
// implement a default timeout for both Replace and Export. A call to Replace
// or Export is not guaranteed to succeed. New implementations should
// implement ExportReplaceCtx.
type ExportReplace interface {
	// Replace replaces the cache with what is in external storage. key is the
	// suggested key which can be used for partitioning the cache.
	Replace(cache Unmarshaler, key string)
	// Export writes the binary representation of the cache (cache.Marshal())
	// to external storage. This is considered opaque. key is the suggested
	// key which can be used for partitioning the cache.
	Export(cache Marshaler, key string)
}

// ExportReplaceCtx is the same as ExportReplace with context.Context support.
// A type implementing ExportReplaceCtx must make Replace/Export call
// ReplaceCtx/ExportCtx with a context.Background() set to a default timeout.
// Implementations should honor context cancellation and return
// context.Canceled or context.DeadlineExceeded in those cases.
type ExportReplaceCtx interface {
	ExportReplace

	// ReplaceCtx replaces the cache with what is in external storage.
	ReplaceCtx(ctx context.Context, cache Unmarshaler, key string) error
	// ExportCtx writes the binary representation of the cache
	// (cache.Marshal()) to external storage.
	ExportCtx(ctx context.Context, cache Marshaler, key string) error
}
