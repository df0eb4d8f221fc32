package keyslot

import (
	"sync"

	"go.uber.org/atomic"
)

// slot is a single-assignment cell. Once a value is published it never changes.
//
// Reads of a published value are a single atomic load. The mutex is only
// taken while no value exists; it serializes producers so that exactly one
// of them publishes, and callers arriving meanwhile wait for its result.
type slot[T any] struct {
	mu sync.Mutex
	v  atomic.Pointer[T]
}

// load returns the published value, or nil.
func (s *slot[T]) load() *T {
	return s.v.Load()
}

// fill publishes the result of produce unless a value already exists.
// It returns the published value and whether this call produced it.
// A failed produce publishes nothing, leaving the slot for the next caller.
func (s *slot[T]) fill(produce func() (*T, error)) (*T, bool, error) {
	if v := s.v.Load(); v != nil {
		return v, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v := s.v.Load(); v != nil {
		return v, false, nil
	}
	v, err := produce()
	if err != nil {
		return nil, false, err
	}
	s.v.Store(v)
	return v, true, nil
}
