// Package connection implements the per-peer connection state machine and
// its registry (spec.md §4.4–4.5): the three-way handshake, teardown, idle
// eviction, and the conn_id/peer_addr indexed store that the dispatcher
// looks connections up in. It generalizes the teacher's Session type
// (source/protocol/raknet.go) and server.go's update/cleanup-loop pattern,
// replacing RakNet's handshake flags with the spec's explicit
// State/transition model.
package connection

import (
	"net"
	"sync"
	"time"

	"github.com/wqdsca/policethief-go/internal/congestion"
	"github.com/wqdsca/policethief-go/internal/reliability"
)

// State is one handshake/lifecycle phase of a Connection, per spec.md §4.4.
type State int

const (
	StateListen State = iota
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "listen"
	case StateSynSent:
		return "syn-sent"
	case StateSynReceived:
		return "syn-received"
	case StateEstablished:
		return "established"
	case StateFinWait:
		return "fin-wait"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultMaxHandshakeRetries bounds SYN/SYN-ACK retransmission before the
// handshake is abandoned (spec.md §4.4).
const DefaultMaxHandshakeRetries = 5

// DefaultIdleTimeout is how long a connection may go without traffic
// before the idle-eviction sweep closes it.
const DefaultIdleTimeout = 30 * time.Second

// Connection is one peer's RUDP session: its handshake/lifecycle state,
// reliability manager, and congestion controller. Mutation is expected to
// be serialized per connection by the dispatcher (spec.md §5); the mutex
// here guards against the sweep goroutine and a dispatcher worker
// observing concurrently.
type Connection struct {
	mu sync.Mutex

	ID       uint64
	PeerAddr *net.UDPAddr

	state State

	Reliability *reliability.Manager
	Congestion  *congestion.Controller

	createdAt      time.Time
	lastActivityAt time.Time

	handshakeRetries int
	maxHandshakeRetries int
}

// New constructs a Connection in StateListen, ready to begin (or accept) a
// handshake.
func New(id uint64, peer *net.UDPAddr, rel *reliability.Manager, cong *congestion.Controller) *Connection {
	now := time.Now()
	return &Connection{
		ID:                  id,
		PeerAddr:            peer,
		state:               StateListen,
		Reliability:         rel,
		Congestion:          cong,
		createdAt:           now,
		lastActivityAt:      now,
		maxHandshakeRetries: DefaultMaxHandshakeRetries,
	}
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Touch records activity, resetting the idle-eviction clock.
func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivityAt = now
}

// IdleSince reports how long it has been since the last recorded activity.
func (c *Connection) IdleSince(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastActivityAt)
}

// ErrHandshakeTimeout is returned once a handshake has exhausted its retry
// budget (spec.md §4.4: "abandon after max_handshake_retries").
type ErrHandshakeTimeout struct{}

func (ErrHandshakeTimeout) Error() string { return "connection: handshake timed out" }

// BeginActiveOpen transitions a fresh Connection to SynSent, for the side
// initiating the handshake.
func (c *Connection) BeginActiveOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateSynSent
}

// OnSynReceived transitions a listening Connection to SynReceived, for the
// side accepting an inbound SYN.
func (c *Connection) OnSynReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateListen {
		c.state = StateSynReceived
	}
}

// OnSynAckReceived completes the initiator's half of the handshake.
func (c *Connection) OnSynAckReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSynSent {
		c.state = StateEstablished
	}
}

// OnAckReceived completes the acceptor's half of the handshake.
func (c *Connection) OnAckReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateSynReceived {
		c.state = StateEstablished
	}
}

// RetryHandshake increments the retry counter and reports whether the
// retry budget is exhausted (ErrHandshakeTimeout should then be raised by
// the caller and the connection torn down).
func (c *Connection) RetryHandshake() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshakeRetries++
	if c.handshakeRetries > c.maxHandshakeRetries {
		c.state = StateClosed
		return ErrHandshakeTimeout{}
	}
	return nil
}

// BeginClose moves an Established connection into FinWait, draining
// outstanding sends before final teardown (spec.md §4.4: "FIN drains
// then acks").
func (c *Connection) BeginClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateEstablished || c.state == StateSynReceived || c.state == StateSynSent {
		c.state = StateFinWait
	}
}

// Drained reports whether FinWait teardown may complete: no reliable
// sends remain in flight.
func (c *Connection) Drained() bool {
	if c.Reliability == nil {
		return true
	}
	return c.Reliability.InFlightCount() == 0
}

// Close transitions directly to Closed, used both for a graceful FinWait
// completion and for an immediate RST (spec.md §4.4: "RST discards
// immediately, bypassing drain").
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// IsClosed reports whether the connection has reached its terminal state.
func (c *Connection) IsClosed() bool {
	return c.State() == StateClosed
}
