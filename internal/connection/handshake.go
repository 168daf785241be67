package connection

import (
	"math/rand"
	"net"
	"time"

	"github.com/wqdsca/policethief-go/internal/congestion"
	"github.com/wqdsca/policethief-go/internal/protocol"
	"github.com/wqdsca/policethief-go/internal/reliability"
)

// Sender is the narrow send surface the handshake driver needs; the
// dispatcher's UDP socket wrapper satisfies it.
type Sender interface {
	SendTo(addr *net.UDPAddr, data []byte) error
}

// initialSendSeq picks the server's own initial sequence number (s1 in
// spec.md §4.4's "SYN-ACK(seq=s1, ack=s0)"), the same way a TCP
// implementation picks an ISN rather than always starting from zero.
func initialSendSeq() uint32 {
	return rand.Uint32()
}

// AcceptSyn handles an inbound SYN from a peer with no existing
// connection: it rate-limits via the registry's handshake counter,
// allocates a connection, and replies with SYN-ACK(seq=s1, ack=s0) where
// s0 is clientSeq, per spec.md §4.4. It returns nil, false if the attempt
// was dropped for rate limiting.
func AcceptSyn(reg *Registry, peer *net.UDPAddr, clientSeq uint32, sender Sender, cfg Config) (*Connection, bool) {
	if !reg.AllowHandshakeAttempt(peer) {
		return nil, false
	}

	serverSeq := initialSendSeq()
	rel := reliability.New(reliability.Config{
		RecvWindowSize: cfg.RecvWindowSize,
		InitialSendSeq: serverSeq,
		InitialRecvSeq: clientSeq + 1,
	})
	cong := congestion.New(congestion.Config{
		CwndInit:     cfg.CwndInit,
		CwndMax:      cfg.CwndMax,
		SsthreshInit: cfg.SsthreshInit,
		RTOMin:       cfg.RTOMin,
		RTOMax:       cfg.RTOMax,
	})
	rel.SetWindow(0xFFFF, cong.Cwnd())

	conn := reg.Open(peer, rel, cong)
	conn.OnSynReceived()

	reply := &protocol.Packet{
		Tag:       protocol.TagSYNACK,
		ConnID:    conn.ID,
		HasAck:    true,
		Ack:       clientSeq,
		Sequence:  serverSeq,
		Timestamp: nowMillis(),
	}
	data, err := reply.Encode()
	if err != nil {
		return conn, true
	}
	_ = sender.SendTo(peer, data)
	return conn, true
}

// Config carries the subset of spec.md §6 configuration the handshake and
// registry need; internal/server fills it field by field from
// internal/config.Config.
type Config struct {
	RecvWindowSize uint32
	CwndInit       uint32
	CwndMax        uint32
	SsthreshInit   uint32
	RTOMin         time.Duration
	RTOMax         time.Duration
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}

// OnSynAck advances an initiator's connection from SynSent to Established
// on a received SYN-ACK(seq=s1, ack=s0), seeds the connection's
// reliability manager so its cumulative-ACK boundary starts at s1+1, and
// replies with ACK(ack=s1), per spec.md §4.4.
func OnSynAck(conn *Connection, synAck *protocol.Packet, sender Sender) {
	conn.OnSynAckReceived()
	if conn.Reliability != nil {
		conn.Reliability.SeedRecvSeq(synAck.Sequence + 1)
	}
	ack := &protocol.Packet{Tag: protocol.TagACK, ConnID: conn.ID, HasAck: true, Ack: synAck.Sequence, Timestamp: nowMillis()}
	data, err := ack.Encode()
	if err != nil {
		return
	}
	_ = sender.SendTo(conn.PeerAddr, data)
}

// OnAck completes the acceptor's half of a three-way handshake.
func OnAck(conn *Connection) {
	conn.OnAckReceived()
}
