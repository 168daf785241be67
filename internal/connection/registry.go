package connection

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/wqdsca/policethief-go/internal/congestion"
	"github.com/wqdsca/policethief-go/internal/reliability"
)

// shardCount bounds lock contention on the registry; conn_id hashes into
// one of these shards so that unrelated connections never block each
// other (spec.md §5: "the registry itself must not serialize unrelated
// connections").
const shardCount = 32

type shard struct {
	mu    sync.RWMutex
	conns map[uint64]*Connection
}

// Registry indexes Connections by conn_id (sharded) and by peer address
// (for demuxing inbound datagrams before a conn_id is known, i.e. during
// the handshake). It also tracks a per-IP handshake-rate counter to bound
// SYN flood abuse, grounded on moto's controller/server.go ipCache
// rate limiter.
type Registry struct {
	shards [shardCount]*shard

	peerMu  sync.RWMutex
	byPeer  map[string]uint64

	nextID atomic.Uint64

	synCache *gocache.Cache
}

// DefaultSynRateWindow and DefaultSynRateLimit mirror moto's WAF shape
// (200 requests / 30s) scaled down for handshake attempts specifically.
const (
	DefaultSynRateWindow = 30 * time.Second
	DefaultSynRateLimit  = 20
)

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{
		byPeer:   make(map[string]uint64),
		synCache: gocache.New(DefaultSynRateWindow, time.Minute),
	}
	for i := range r.shards {
		r.shards[i] = &shard{conns: make(map[uint64]*Connection)}
	}
	return r
}

func (r *Registry) shardFor(id uint64) *shard {
	return r.shards[id%shardCount]
}

// AllowHandshakeAttempt reports whether peer has stayed under
// DefaultSynRateLimit attempts within the rate window, incrementing its
// counter as a side effect. Callers should drop the SYN silently when this
// returns false (spec.md §9 hardening note: no response, to avoid giving
// an attacker a reflection oracle).
func (r *Registry) AllowHandshakeAttempt(peer *net.UDPAddr) bool {
	key := peer.IP.String()
	if count, found := r.synCache.Get(key); found {
		if count.(int) >= DefaultSynRateLimit {
			return false
		}
		r.synCache.Increment(key, 1)
		return true
	}
	r.synCache.Set(key, 1, gocache.DefaultExpiration)
	return true
}

// NextConnID allocates a new, process-unique connection identifier.
func (r *Registry) NextConnID() uint64 {
	return r.nextID.Add(1)
}

// Open registers a new Connection under both indexes.
func (r *Registry) Open(peer *net.UDPAddr, rel *reliability.Manager, cong *congestion.Controller) *Connection {
	id := r.NextConnID()
	conn := New(id, peer, rel, cong)

	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.conns[id] = conn
	sh.mu.Unlock()

	r.peerMu.Lock()
	r.byPeer[peer.String()] = id
	r.peerMu.Unlock()

	return conn
}

// Lookup finds a Connection by conn_id.
func (r *Registry) Lookup(id uint64) (*Connection, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.conns[id]
	return c, ok
}

// LookupByPeer finds a Connection by UDP source address, used while a
// conn_id has not yet been established (i.e. during handshake).
func (r *Registry) LookupByPeer(peer *net.UDPAddr) (*Connection, bool) {
	r.peerMu.RLock()
	id, ok := r.byPeer[peer.String()]
	r.peerMu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.Lookup(id)
}

// Remove evicts a Connection from both indexes. Idempotent: removing an
// already-absent conn_id is a no-op (spec.md's "idempotent close"
// invariant).
func (r *Registry) Remove(id uint64) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	conn, ok := sh.conns[id]
	delete(sh.conns, id)
	sh.mu.Unlock()

	if !ok {
		return
	}
	r.peerMu.Lock()
	if r.byPeer[conn.PeerAddr.String()] == id {
		delete(r.byPeer, conn.PeerAddr.String())
	}
	r.peerMu.Unlock()
}

// Len reports the total number of registered connections across shards.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.conns)
		sh.mu.RUnlock()
	}
	return n
}

// SweepIdle closes and removes every connection idle for at least
// idleTimeout, returning the conn_ids it evicted. Intended to run
// periodically (default DefaultIdleSweepPeriod) from the dispatcher's
// timer heap, per spec.md §4.4's "idle eviction sweep" requirement.
func (r *Registry) SweepIdle(now time.Time, idleTimeout time.Duration) []uint64 {
	var evicted []uint64
	for _, sh := range r.shards {
		sh.mu.RLock()
		var stale []uint64
		for id, c := range sh.conns {
			if c.IdleSince(now) >= idleTimeout {
				stale = append(stale, id)
			}
		}
		sh.mu.RUnlock()

		for _, id := range stale {
			if c, ok := r.Lookup(id); ok {
				c.Close()
			}
			r.Remove(id)
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// DefaultIdleSweepPeriod is how often SweepIdle should be invoked.
const DefaultIdleSweepPeriod = 1 * time.Second
