// Package remote implements the tunnel-terminating side: the WebSocket
// server, the per-cid upstream registry, the dialer, and the upstream
// pump described in spec §2/§4 (remote side).
package remote

import (
	"net"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// Registry maps cid to the live upstream net.Conn the remote side
// dialed for that stream (spec §4.2, remote side). Backed by
// patrickmn/go-cache; entries are stored without a TTL, so an entry
// stays until Remove is called for its cid.
type Registry struct {
	c *cache.Cache
}

// NewRegistry creates an empty registry. Entries never expire on their
// own; cleanupInterval only controls how often the cache sweeps for
// explicitly-expired items, which this registry does not set.
func NewRegistry() *Registry {
	return &Registry{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

// Insert registers the upstream connection for cid.
func (r *Registry) Insert(cid string, conn net.Conn) {
	r.c.Set(cid, conn, cache.NoExpiration)
}

// Lookup returns the upstream connection for cid, if any.
func (r *Registry) Lookup(cid string) (net.Conn, bool) {
	v, ok := r.c.Get(cid)
	if !ok {
		return nil, false
	}
	return v.(net.Conn), true
}

// Remove deletes the entry for cid. Idempotent.
func (r *Registry) Remove(cid string) {
	r.c.Delete(cid)
}

// Len returns the number of live entries, for tests and metrics.
func (r *Registry) Len() int {
	return r.c.ItemCount()
}
