// Package genstore keeps a generation counter per cache entry path.
//
// filecache bumps the generation of a path whenever the entry is removed, and
// stamps records and downloads with the generation observed when they began.
// A record or a finished download whose stamp no longer matches is stale.
package genstore

import (
	"context"
	"time"
)

// Store abstracts where generations live.
// Local keeps them in-process; Redis shares them across processes and restarts.
type Store interface {
	// Snapshot returns the current generation of path; missing => 0.
	Snapshot(ctx context.Context, path string) (uint64, error)
	// SnapshotMany returns generations for many paths; missing => 0.
	SnapshotMany(ctx context.Context, paths []string) (map[string]uint64, error)
	// Bump atomically increments and returns the new generation of path.
	Bump(ctx context.Context, path string) (uint64, error)
	// Cleanup prunes entries not bumped within retention (no-op for Redis).
	Cleanup(retention time.Duration)
	// Close releases resources.
	Close(context.Context) error
}
