package registry

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/andaru/unicomm/ucerr"
	"github.com/cespare/xxhash/v2"
)

// Entry is anything the registry can hold.
type Entry interface {
	ID() uint64
}

// DefaultShards is the shard count used when none is given.
const DefaultShards = 16

// Registry maps session ids to the entries that own them. It is safe
// for concurrent use; operations on different ids rarely contend.
type Registry[E Entry] struct {
	shards   []*shard[E]
	mask     uint64
	capacity int64
	count    atomic.Int64
	nextID   atomic.Uint64
}

type shard[E Entry] struct {
	mu      sync.RWMutex
	entries map[uint64]E
}

// Option is a constructor option for Registry.
type Option func(*options)

type options struct {
	shards   int
	capacity int
}

// WithShards sets the shard count, rounded up to a power of two.
func WithShards(n int) Option { return func(o *options) { o.shards = n } }

// WithCapacity bounds the number of entries. Zero means unbounded.
func WithCapacity(n int) Option { return func(o *options) { o.capacity = n } }

// New returns an empty Registry.
func New[E Entry](opts ...Option) *Registry[E] {
	o := options{shards: DefaultShards}
	for _, opt := range opts {
		opt(&o)
	}
	if o.shards <= 0 {
		o.shards = DefaultShards
	}
	n := nextPowerOfTwo(uint64(o.shards))
	r := &Registry[E]{
		shards:   make([]*shard[E], n),
		mask:     n - 1,
		capacity: int64(o.capacity),
	}
	for i := range r.shards {
		r.shards[i] = &shard[E]{entries: make(map[uint64]E)}
	}
	return r
}

func (r *Registry[E]) shard(id uint64) *shard[E] {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], id)
	return r.shards[xxhash.Sum64(b[:])&r.mask]
}

// NextID returns a fresh id. Ids start at 1 and are never reused.
func (r *Registry[E]) NextID() uint64 { return r.nextID.Add(1) }

// Insert adds e under e.ID(). It fails with creation-conflict if the
// id is taken or the registry is full.
func (r *Registry[E]) Insert(e E) error {
	id := e.ID()
	if r.capacity > 0 {
		if r.count.Add(1) > r.capacity {
			r.count.Add(-1)
			return ucerr.CreationConflict(ucerr.WithSession(id), ucerr.WithMessage("registry full"))
		}
	} else {
		r.count.Add(1)
	}
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[id]; ok {
		r.count.Add(-1)
		return ucerr.CreationConflict(ucerr.WithSession(id), ucerr.WithMessage("id in use"))
	}
	sh.entries[id] = e
	return nil
}

// Find returns the entry registered under id, or a not-found error.
func (r *Registry[E]) Find(id uint64) (E, error) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[id]
	if !ok {
		return e, ucerr.NotFound(id)
	}
	return e, nil
}

// Remove unregisters id and returns its entry, or a not-found error.
func (r *Registry[E]) Remove(id uint64) (E, error) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[id]
	if !ok {
		return e, ucerr.NotFound(id)
	}
	delete(sh.entries, id)
	r.count.Add(-1)
	return e, nil
}

// Len returns the number of registered entries.
func (r *Registry[E]) Len() int { return int(r.count.Load()) }

// ForEach calls fn for each entry present when ForEach was called,
// until fn returns false. fn may Insert or Remove entries.
func (r *Registry[E]) ForEach(fn func(E) bool) {
	for _, e := range r.Snapshot() {
		if !fn(e) {
			return
		}
	}
}

// Snapshot returns the registered entries. Every shard is read locked
// while copying, so the result is the registry's contents at a single
// point in time.
func (r *Registry[E]) Snapshot() []E {
	for _, sh := range r.shards {
		sh.mu.RLock()
	}
	n := 0
	for _, sh := range r.shards {
		n += len(sh.entries)
	}
	out := make([]E, 0, n)
	for _, sh := range r.shards {
		for _, e := range sh.entries {
			out = append(out, e)
		}
	}
	for _, sh := range r.shards {
		sh.mu.RUnlock()
	}
	return out
}

func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
