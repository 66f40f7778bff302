// Package memory implements ddq.Queue as an in-process bounded ring of
// UUIDs, combining a circular array (for eviction order) with a set (for
// O(1) membership).
package memory

import (
	"context"
	"sync"

	"github.com/arielkovacs/msgbus/ddq"
	apperrors "github.com/arielkovacs/msgbus/internal/errors"
)

// Ring is a fixed-capacity deduplication queue. All mutations are
// serialized under a single lock; a plain circular array alone would make
// Contains O(N), and a plain set alone would lose the eviction order, so
// this hybrid gives O(1) for both at roughly 2x the memory of either.
type Ring struct {
	mu       sync.Mutex
	slots    []string
	present  map[string]struct{}
	cursor   int
	count    int
	capacity int
}

// New creates a Ring with the given positive capacity.
func New(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "ddq capacity must be positive", nil)
	}
	return &Ring{
		slots:    make([]string, capacity),
		present:  make(map[string]struct{}, capacity),
		capacity: capacity,
	}, nil
}

func (r *Ring) Contains(_ context.Context, uuid string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.present[uuid]
	return ok, nil
}

func (r *Ring) Add(_ context.Context, uuid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.present[uuid]; ok {
		return nil
	}

	evicted := r.slots[r.cursor]
	if evicted != "" {
		delete(r.present, evicted)
	}

	r.slots[r.cursor] = uuid
	r.present[uuid] = struct{}{}
	r.cursor = (r.cursor + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
	return nil
}

func (r *Ring) StatsSnapshot(_ context.Context) (ddq.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ddq.Stats{
		Size:        r.capacity,
		Count:       r.count,
		Utilization: float64(r.count) / float64(r.capacity),
	}, nil
}

func (r *Ring) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.slots {
		r.slots[i] = ""
	}
	r.present = make(map[string]struct{}, r.capacity)
	r.cursor = 0
	r.count = 0
	return nil
}

var _ ddq.Queue = (*Ring)(nil)
