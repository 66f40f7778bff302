// Package ddq defines the deduplication-queue contract: a bounded ring of
// recently seen message UUIDs, scoped per (message_class, handler), giving
// O(1) duplicate rejection on the dispatcher's hot path.
package ddq

import "context"

// Stats reports the current occupancy of a Queue.
type Stats struct {
	Size        int     // capacity
	Count       int     // number of entries currently held
	Utilization float64 // Count / Size
}

// Queue is the deduplication-queue contract. Implementations must make
// Contains and Add effectively O(1); Add must be idempotent.
type Queue interface {
	// Contains reports whether uuid was already recorded. Implementations
	// backed by an external store must fail open (return false) on a
	// store error rather than block message processing.
	Contains(ctx context.Context, uuid string) (bool, error)

	// Add records uuid as seen, evicting the oldest entry if the queue is
	// at capacity. Re-adding an already-present uuid is a no-op.
	Add(ctx context.Context, uuid string) error

	// StatsSnapshot reports current occupancy.
	StatsSnapshot(ctx context.Context) (Stats, error)

	// Clear empties the queue.
	Clear(ctx context.Context) error
}
