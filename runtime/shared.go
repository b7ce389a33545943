package runtime

import (
	"sync"

	"github.com/wippyai/objbridge/instance"
)

// Shared is a reference-counted native value. Native code returns a
// *Shared (or declares a share policy) to hand the host one share of the
// value instead of a copy; the value is dropped when the last share goes.
type Shared struct {
	value any
	refs  int
	mu    sync.Mutex
}

// NewShared wraps v with one share held by the caller.
func NewShared(v any) *Shared {
	return &Shared{value: v, refs: 1}
}

// Acquire adds a share and returns s.
func (s *Shared) Acquire() *Shared {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
	return s
}

// Release gives up a share and returns the remaining count. The value is
// dropped when the count reaches zero.
func (s *Shared) Release() int {
	s.mu.Lock()
	if s.refs == 0 {
		s.mu.Unlock()
		return 0
	}
	s.refs--
	refs := s.refs
	v := s.value
	if refs == 0 {
		s.value = nil
	}
	s.mu.Unlock()

	if refs == 0 {
		if d, ok := v.(instance.Dropper); ok {
			d.Drop()
		}
	}
	return refs
}

// Refs returns the number of outstanding shares.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Value returns the wrapped value, nil once every share is gone.
func (s *Shared) Value() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}
