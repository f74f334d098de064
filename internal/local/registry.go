package local

import "sync"

// Registry maps cid to stream entry (spec §4.2). Safe for concurrent
// use by the acceptor, tunnel receiver, and per-stream pumps.
type Registry struct {
	mu      sync.RWMutex
	streams map[string]*Stream
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[string]*Stream)}
}

// Insert adds a stream entry, replacing any existing entry with the same cid.
func (r *Registry) Insert(s *Stream) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[s.CID] = s
}

// Lookup returns the stream entry for cid, if any.
func (r *Registry) Lookup(cid string) (*Stream, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[cid]
	return s, ok
}

// Remove deletes the entry for cid. Idempotent: removing an absent or
// already-removed cid is a no-op.
func (r *Registry) Remove(cid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, cid)
}

// Len returns the number of live entries, for tests and metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
