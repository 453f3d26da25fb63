package transport

import (
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
)

// ChildOp is the minimal shape a sent-message registry entry needs: the
// child operation that should receive the reply to one outbound message.
// Kept as an empty marker interface here — the actual operation types
// (GetOperation, PutOperation, UpdateOperation) live in package childops
// and satisfy it trivially; the registry itself never calls methods on the
// value, it only stores and returns it.
type ChildOp interface{}

// Registry is the sent-message registry spec.md §4.2 specifies: a map from
// outbound message id to the child operation that should receive its
// reply. Pop removes the entry; PopAny pops an arbitrary entry, used by
// onClose to drain whatever is still outstanding.
//
// A cuckoo filter of every id ever inserted rides alongside the map so a
// reply that arrives after its entry has already been popped (a duplicate
// reply) is recognized as "seen before" in O(1) after the map miss, and
// told apart from a reply for an id this registry never issued.
type Registry struct {
	mtx     sync.Mutex
	entries map[string]ChildOp
	seen    *cuckoo.Filter
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]ChildOp),
		seen:    cuckoo.NewFilter(1024),
	}
}

func (r *Registry) Insert(id string, op ChildOp) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.entries[id] = op
	r.seen.InsertUnique([]byte(id))
}

// Pop removes and returns the entry for id, if any.
func (r *Registry) Pop(id string) (ChildOp, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	op, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return op, ok
}

// PopAny removes and returns an arbitrary entry, used by onClose's drain.
func (r *Registry) PopAny() (ChildOp, bool) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for id, op := range r.entries {
		delete(r.entries, id)
		return op, true
	}
	return nil, false
}

func (r *Registry) Empty() bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return len(r.entries) == 0
}

// EverSeen reports whether id was ever inserted, even if it has since been
// popped — the idempotent-drain check for replies arriving after the
// operation has already sent its one reply.
func (r *Registry) EverSeen(id string) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.seen.Lookup([]byte(id))
}
