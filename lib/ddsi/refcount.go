package ddsi

import (
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Atomic reference counter
// --------------------------------------------------------------------------

// refCount is the lock-free counter shared by Serdata and Sertype.
// The zero value is a dead counter, use init to give the creator its reference.
type refCount struct {
	v atomic.Uint32
}

// init sets the counter to one (the reference of the creator)
func (r *refCount) init() {
	r.v.Store(1)
}

// load returns the current count
func (r *refCount) load() uint32 {
	return r.v.Load()
}

// inc adds a reference and returns the previous count.
// A previous count of zero means the object was already dead.
func (r *refCount) inc() uint32 {
	return r.v.Add(1) - 1
}

// tryInc adds a reference only if the counter is still alive.
// It is used where a lookup can race with the final release.
func (r *refCount) tryInc() bool {
	for {
		v := r.v.Load()
		if v == 0 {
			return false
		}
		if r.v.CompareAndSwap(v, v+1) {
			return true
		}
	}
}

// dec drops a reference and returns the count observed before the decrement.
// The counter never goes below zero: a caller observing 0 gets 0 back and
// nothing is modified, it is up to the caller to treat this as fatal.
func (r *refCount) dec() uint32 {
	for {
		v := r.v.Load()
		if v == 0 {
			return 0
		}
		if r.v.CompareAndSwap(v, v-1) {
			return v
		}
	}
}

// decIfLast drops the reference only if it is the last one.
func (r *refCount) decIfLast() bool {
	return r.v.CompareAndSwap(1, 0)
}
