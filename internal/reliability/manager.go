// Package reliability implements the per-connection reliability manager
// (spec.md §4.2): send/receive windows, selective-acknowledgement tracking,
// retransmission, duplicate detection and in-order reassembly. It is
// grounded in the teacher's Session.SendQueue/RecoveryQueue/ACKQueue/NACKQueue
// machinery in source/protocol/raknet.go, generalized from RakNet's
// sequence-number-keyed maps to the spec's explicit SendRecord/RecvRecord
// model and fed by internal/congestion instead of being congestion-unaware.
package reliability

import (
	"sort"
	"sync"
	"time"

	"github.com/wqdsca/policethief-go/internal/protocol"
)

// DefaultMaxRetries bounds retransmission attempts per spec.md §4.2 before
// the connection is signalled for reset.
const DefaultMaxRetries = 8

// SendRecord tracks one outstanding reliable payload awaiting ACK.
type SendRecord struct {
	Sequence     uint32
	Payload      []byte
	FirstSentAt  time.Time
	LastSentAt   time.Time
	Retries      uint32
	InFlight     bool
	NeedsAck     bool
}

// RecvRecord holds one received-but-not-yet-delivered payload, used while
// waiting for a gap ahead of it to fill.
type RecvRecord struct {
	Sequence   uint32
	Payload    []byte
	ReceivedAt time.Time
}

// RTTSampler receives one RTT observation per non-retransmitted ACKed
// packet; internal/congestion.Controller satisfies this.
type RTTSampler interface {
	UpdateRTT(sample time.Duration)
}

// ResetSignal is invoked when retransmission exhausts MaxRetries for a
// record, per spec.md §4.2 ("signal C4 to reset the connection").
type ResetSignal func()

// dupWindowFactor is how much wider than send_window_size the duplicate
// detection bitset must be, per spec.md §4.2 ("at least as wide as 2 ×
// send_window_size").
const dupWindowFactor = 2

// Manager is the per-connection reliability state machine. Every method
// takes the Manager's mutex, so concurrent calls do not race; the order in
// which sends, ACKs and receives are applied is still the caller's to
// serialize per connection (spec.md §5: "per-connection work is
// serialized").
type Manager struct {
	mu sync.Mutex

	nextSendSeq uint32
	sendBuffer  map[uint32]*SendRecord
	maxRetries  uint32

	nextExpectedRecv uint32
	recvBuffer       map[uint32]*RecvRecord
	receivedSeen     map[uint32]struct{} // duplicate-detection set, windowed
	recvWindowSize   uint32

	pendingAcks map[uint32]struct{}

	sendWindowSize  uint32 // min(peer-advertised, cwnd), set by caller each tick
	peerWindowSize  uint32

	rtt    RTTSampler
	onLoss ResetSignal
}

// Config seeds a new Manager.
type Config struct {
	InitialSendSeq   uint32
	InitialRecvSeq    uint32
	MaxRetries       uint32
	RecvWindowSize   uint32 // stored only; recv_buffer and the duplicate set are not bounded by it
	RTT              RTTSampler
	OnRetriesExceeded ResetSignal
}

func New(cfg Config) *Manager {
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	recvWindow := cfg.RecvWindowSize
	if recvWindow == 0 {
		recvWindow = 1024
	}
	return &Manager{
		nextSendSeq:      cfg.InitialSendSeq,
		sendBuffer:       make(map[uint32]*SendRecord),
		maxRetries:       maxRetries,
		nextExpectedRecv: cfg.InitialRecvSeq,
		recvBuffer:       make(map[uint32]*RecvRecord),
		receivedSeen:     make(map[uint32]struct{}),
		recvWindowSize:   recvWindow,
		pendingAcks:      make(map[uint32]struct{}),
		sendWindowSize:   2, // congestion's default initial cwnd, until SetWindow is called
		rtt:              cfg.RTT,
		onLoss:           cfg.OnRetriesExceeded,
	}
}

// ErrBusy is returned by Send when the send window is full; the caller
// should apply backpressure (spec.md §4.2: "rejects when in_flight_count >=
// send_window_size").
type ErrBusy struct{}

func (ErrBusy) Error() string { return "reliability: send window full" }

// SeedRecvSeq sets only the cumulative-ACK boundary, leaving the send
// sequence untouched. Used by the initiator side of the handshake: its
// own initial send sequence (s0) was already chosen when the SYN was
// sent, and only the peer's chosen sequence (s1, carried by the SYN-ACK)
// is new information at that point.
func (m *Manager) SeedRecvSeq(initialRecv uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextExpectedRecv = initialRecv
}

// SetWindow updates the effective send window, typically
// min(peerAdvertised, cwnd.Cwnd()) recomputed by the caller on every tick.
func (m *Manager) SetWindow(peerAdvertised, cwnd uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerWindowSize = peerAdvertised
	w := cwnd
	if peerAdvertised < w {
		w = peerAdvertised
	}
	if w == 0 {
		w = 1
	}
	m.sendWindowSize = w
}

// Send assigns the next sequence number to payload. If reliable, the
// payload is retained in the send buffer for retransmission and ACK
// tracking; if not, it bypasses ordering/retention entirely (spec.md §4.2:
// "unreliable sends ... bypass ordering and are delivered as received").
func (m *Manager) Send(payload []byte, reliable bool) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if reliable && uint32(m.inFlightCountLocked()) >= m.sendWindowSize {
		return 0, ErrBusy{}
	}

	seq := m.nextSendSeq
	m.nextSendSeq++

	if reliable {
		now := time.Now()
		m.sendBuffer[seq] = &SendRecord{
			Sequence:    seq,
			Payload:     append([]byte(nil), payload...),
			FirstSentAt: now,
			LastSentAt:  now,
			InFlight:    true,
			NeedsAck:    true,
		}
	}
	return seq, nil
}

func (m *Manager) inFlightCountLocked() int {
	n := 0
	for _, r := range m.sendBuffer {
		if r.InFlight {
			n++
		}
	}
	return n
}

// OnAck removes every send-buffer record at or below cum, and every record
// covered by any SACK range. For each newly-removed record that was never
// retransmitted, it samples RTT. Ranges referring to sequences not present
// in the send buffer (spurious or already-removed) are ignored without
// error, per spec.md §4.2.
func (m *Manager) OnAck(cum uint32, ranges []protocol.AckRange) (ackedCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for seq, rec := range m.sendBuffer {
		if protocol.SeqLessEqual(seq, cum) {
			m.ackRecordLocked(rec, now)
			delete(m.sendBuffer, seq)
			ackedCount++
		}
	}
	for _, r := range ranges {
		for seq := r.Start; ; seq++ {
			if rec, ok := m.sendBuffer[seq]; ok {
				m.ackRecordLocked(rec, now)
				delete(m.sendBuffer, seq)
				ackedCount++
			}
			if seq == r.End {
				break
			}
		}
	}
	return ackedCount
}

func (m *Manager) ackRecordLocked(rec *SendRecord, now time.Time) {
	if rec.Retries == 0 && m.rtt != nil {
		m.rtt.UpdateRTT(now.Sub(rec.FirstSentAt))
	}
}

// OnReceive processes one incoming (sequence, payload), returning the
// in-order payloads now deliverable to the application (possibly more than
// one, if this receive filled a gap) and whether the incoming sequence was
// a duplicate.
func (m *Manager) OnReceive(sequence uint32, payload []byte) (deliverable [][]byte, duplicate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, seen := m.receivedSeen[sequence]; seen || protocol.SeqLess(sequence, m.nextExpectedRecv) {
		m.pendingAcks[sequence] = struct{}{}
		return nil, true
	}

	m.receivedSeen[sequence] = struct{}{}
	m.recvBuffer[sequence] = &RecvRecord{Sequence: sequence, Payload: payload, ReceivedAt: time.Now()}
	m.pendingAcks[sequence] = struct{}{}
	m.pruneDuplicateWindowLocked()

	for {
		rec, ok := m.recvBuffer[m.nextExpectedRecv]
		if !ok {
			break
		}
		deliverable = append(deliverable, rec.Payload)
		delete(m.recvBuffer, m.nextExpectedRecv)
		m.nextExpectedRecv++
	}
	return deliverable, false
}

// pruneDuplicateWindowLocked bounds the duplicate-detection set's memory to
// roughly dupWindowFactor*sendWindowSize behind the current cumulative
// point, per spec.md §4.2.
func (m *Manager) pruneDuplicateWindowLocked() {
	width := dupWindowFactor * m.sendWindowSize
	if width == 0 {
		width = dupWindowFactor
	}
	floor := m.nextExpectedRecv - width
	for seq := range m.receivedSeen {
		if protocol.SeqLess(seq, floor) {
			delete(m.receivedSeen, seq)
		}
	}
}

// RetransmitTick resends every in-flight record whose last send is at
// least rto old, incrementing its retry counter. If any record exceeds
// maxRetries, onLoss (if set) fires exactly once and the record is
// dropped from further retransmission (the caller is expected to tear the
// connection down).
func (m *Manager) RetransmitTick(now time.Time, rto time.Duration, resend func(seq uint32, payload []byte)) {
	m.mu.Lock()
	var exceeded bool
	due := make([]*SendRecord, 0)
	for _, rec := range m.sendBuffer {
		if !rec.InFlight {
			continue
		}
		if now.Sub(rec.LastSentAt) >= rto {
			due = append(due, rec)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].Sequence < due[j].Sequence })
	resendable := due[:0]
	for _, rec := range due {
		rec.Retries++
		rec.LastSentAt = now
		if rec.Retries > m.maxRetries {
			exceeded = true
			rec.InFlight = false
			continue
		}
		resendable = append(resendable, rec)
	}
	onLoss := m.onLoss
	m.mu.Unlock()

	for _, rec := range resendable {
		resend(rec.Sequence, rec.Payload)
	}
	if exceeded && onLoss != nil {
		onLoss()
	}
}

// BuildSack coalesces pending_acks and recv_buffer holds into a minimal,
// sorted, non-overlapping set of ack ranges, plus the cumulative ack point.
// Per spec.md §4.2, the cumulative field is next_expected_recv - 1.
func (m *Manager) BuildSack() (cum uint32, ranges []protocol.AckRange) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cum = m.nextExpectedRecv - 1

	raw := make([]protocol.AckRange, 0, len(m.pendingAcks)+len(m.recvBuffer))
	seen := make(map[uint32]struct{}, len(raw))
	add := func(seq uint32) {
		if _, ok := seen[seq]; ok {
			return
		}
		seen[seq] = struct{}{}
		raw = append(raw, protocol.AckRange{Start: seq, End: seq})
	}
	for seq := range m.pendingAcks {
		add(seq)
	}
	for seq := range m.recvBuffer {
		add(seq)
	}
	m.pendingAcks = make(map[uint32]struct{})

	return cum, protocol.CoalesceRanges(raw, cum)
}

// InFlightCount reports the number of reliable sends still awaiting ACK.
func (m *Manager) InFlightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inFlightCountLocked()
}

// NextExpectedRecv reports the current cumulative ACK boundary.
func (m *Manager) NextExpectedRecv() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextExpectedRecv
}
