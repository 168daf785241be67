// Package dispatcher implements the single-socket UDP event loop that
// demuxes inbound datagrams to connections, drains per-connection send
// queues, and drives the RTO/heartbeat/idle-sweep timers (spec.md §4.8).
// It generalizes the teacher's Server.listen/updateLoop/sessionCleanupLoop
// trio (source/server/server.go) from SA-MP's ad-hoc tickers to a single
// timer min-heap, and replaces RakNet's implicit per-packet goroutine
// spawn with explicit backpressure (spec.md: "Busy signal").
package dispatcher

import (
	"container/heap"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/wqdsca/policethief-go/internal/connection"
	"github.com/wqdsca/policethief-go/internal/protocol"
)

// ErrBusy is returned by Enqueue when the outbound queue for a
// connection is at its high-water mark (spec.md §4.8's backpressure
// requirement).
var ErrBusy = errors.New("dispatcher: outbound queue busy")

// Socket is the narrow UDP surface the Dispatcher needs; *net.UDPConn
// satisfies it, and tests use a fake.
type Socket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
	Close() error
}

// Handler processes one decoded inbound packet for a known (or
// about-to-be-created) connection.
type Handler func(peer *net.UDPAddr, pkt *protocol.Packet)

// Dispatcher owns the socket read loop, the outbound per-connection
// queues, and the timer heap.
type Dispatcher struct {
	sock Socket
	reg  *connection.Registry

	onPacket Handler

	outMu      sync.Mutex
	outQueues  map[uint64]chan []byte
	queueDepth int

	timers   timerHeap
	timersMu sync.Mutex
	onTimer  TimerFired

	stop chan struct{}
	wg   sync.WaitGroup
}

// DefaultQueueDepth bounds each connection's outbound queue before
// Enqueue starts returning ErrBusy.
const DefaultQueueDepth = 256

// New constructs a Dispatcher over sock, demuxing to reg and invoking
// onPacket for each decoded datagram.
func New(sock Socket, reg *connection.Registry, onPacket Handler) *Dispatcher {
	return &Dispatcher{
		sock:       sock,
		reg:        reg,
		onPacket:   onPacket,
		outQueues:  make(map[uint64]chan []byte),
		queueDepth: DefaultQueueDepth,
		stop:       make(chan struct{}),
	}
}

// Run starts the read loop and the timer-draining goroutine. It blocks
// until Stop is called; socket read errors are skipped, not returned.
func (d *Dispatcher) Run() error {
	d.wg.Add(1)
	go d.timerLoop()
	return d.readLoop()
}

func (d *Dispatcher) readLoop() error {
	buf := make([]byte, protocol.MaxDatagramSize)
	for {
		select {
		case <-d.stop:
			return nil
		default:
		}

		n, addr, err := d.sock.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.stop:
				return nil
			default:
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		pkt, err := protocol.Decode(data)
		if err != nil {
			continue // malformed datagram: drop silently, per spec.md §4.1
		}
		if d.onPacket != nil {
			d.onPacket(addr, pkt)
		}
	}
}

// Stop halts the read and timer loops and closes the socket.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.sock.Close()
	d.wg.Wait()
}

// Enqueue appends data to conn_id's outbound queue, delivering it on the
// socket from a per-connection goroutine so that one slow connection
// cannot block another's sends. Returns ErrBusy if the queue is full.
func (d *Dispatcher) Enqueue(connID uint64, peer *net.UDPAddr, data []byte) error {
	d.outMu.Lock()
	q, ok := d.outQueues[connID]
	if !ok {
		q = make(chan []byte, d.queueDepth)
		d.outQueues[connID] = q
		d.wg.Add(1)
		go d.drainQueue(connID, peer, q)
	}
	d.outMu.Unlock()

	select {
	case q <- data:
		return nil
	default:
		return ErrBusy
	}
}

func (d *Dispatcher) drainQueue(connID uint64, peer *net.UDPAddr, q chan []byte) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case data, ok := <-q:
			if !ok {
				return
			}
			d.sock.WriteToUDP(data, peer)
		}
	}
}

// CloseQueue removes and closes connID's outbound queue, e.g. once the
// connection reaches StateClosed.
func (d *Dispatcher) CloseQueue(connID uint64) {
	d.outMu.Lock()
	q, ok := d.outQueues[connID]
	delete(d.outQueues, connID)
	d.outMu.Unlock()
	if ok {
		close(q)
	}
}

// TimerKind distinguishes the three periodic drivers multiplexed onto one
// min-heap, per spec.md §4.8.
type TimerKind int

const (
	TimerRTO TimerKind = iota
	TimerHeartbeat
	TimerIdleSweep
)

// timerEntry is one scheduled firing.
type timerEntry struct {
	deadline time.Time
	kind     TimerKind
	connID   uint64
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// ScheduleTimer adds a one-shot timer firing at deadline.
func (d *Dispatcher) ScheduleTimer(kind TimerKind, connID uint64, deadline time.Time) {
	d.timersMu.Lock()
	defer d.timersMu.Unlock()
	heap.Push(&d.timers, &timerEntry{deadline: deadline, kind: kind, connID: connID})
}

// TimerFired is invoked for every timer whose deadline has passed.
type TimerFired func(kind TimerKind, connID uint64)

// SetTimerHandler registers the callback invoked for every fired timer.
// Fired timers are dropped silently if no handler is set.
func (d *Dispatcher) SetTimerHandler(h TimerFired) {
	d.timersMu.Lock()
	defer d.timersMu.Unlock()
	d.onTimer = h
}

// popDue pops and returns every timer entry due at or before now,
// coalescing nothing (the caller decides whether repeated timers for the
// same connID matter).
func (d *Dispatcher) popDue(now time.Time) []*timerEntry {
	d.timersMu.Lock()
	defer d.timersMu.Unlock()
	var due []*timerEntry
	for d.timers.Len() > 0 && !d.timers[0].deadline.After(now) {
		due = append(due, heap.Pop(&d.timers).(*timerEntry))
	}
	return due
}

// timerTickInterval is how often the timer loop wakes to check for due
// entries; it bounds firing latency without busy-polling.
const timerTickInterval = 10 * time.Millisecond

func (d *Dispatcher) timerLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(timerTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case now := <-ticker.C:
			due := d.popDue(now)
			d.timersMu.Lock()
			handler := d.onTimer
			d.timersMu.Unlock()
			if handler == nil {
				continue
			}
			for _, e := range due {
				handler(e.kind, e.connID)
			}
		}
	}
}
