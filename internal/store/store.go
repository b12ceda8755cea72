// Package store provides durable, append-only storage of evicted segments.
package store

import (
	"context"

	"github.com/rcliao/evicted-rag/internal/model"
)

// DefaultListLimit is used by ListSegments when the caller passes limit <= 0.
const DefaultListLimit = 100

// Store defines the evicted-segment storage interface.
type Store interface {
	// AddSegment persists seg under a freshly assigned id and returns it.
	// Any ID already set on seg is ignored.
	AddSegment(ctx context.Context, seg model.Segment) (string, error)

	// GetSegment returns the segment stored under id. ok is false when the
	// id is unknown; that is not an error.
	GetSegment(ctx context.Context, id string) (seg model.Segment, ok bool, err error)

	// ListSegments returns up to limit segments, newest first.
	ListSegments(ctx context.Context, limit int) ([]model.Segment, error)

	// Prune deletes all but the newest keep segments and returns the
	// removed ids, oldest first.
	Prune(ctx context.Context, keep int) ([]string, error)

	// Close closes the store.
	Close() error
}
