package connection

import (
	"net"
	"testing"

	"github.com/wqdsca/policethief-go/internal/congestion"
	"github.com/wqdsca/policethief-go/internal/protocol"
	"github.com/wqdsca/policethief-go/internal/reliability"
)

type recordingSender struct {
	sent [][]byte
}

func (s *recordingSender) SendTo(_ *net.UDPAddr, data []byte) error {
	s.sent = append(s.sent, data)
	return nil
}

func TestAcceptSynRepliesWithSynAck(t *testing.T) {
	reg := NewRegistry()
	sender := &recordingSender{}
	clientSeq := uint32(100)
	conn, ok := AcceptSyn(reg, testPeer(20), clientSeq, sender, Config{})
	if !ok || conn == nil {
		t.Fatal("expected SYN to be accepted")
	}
	if conn.State() != StateSynReceived {
		t.Fatalf("state = %v, want SynReceived", conn.State())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected one SYN-ACK reply, got %d", len(sender.sent))
	}
	reply, err := protocol.Decode(sender.sent[0])
	if err != nil {
		t.Fatalf("Decode reply: %v", err)
	}
	if reply.Tag != protocol.TagSYNACK || reply.ConnID != conn.ID {
		t.Fatalf("reply = %+v, want SYN-ACK for conn %d", reply, conn.ID)
	}
	if !reply.HasAck || reply.Ack != clientSeq {
		t.Fatalf("reply ack = %+v, want HasAck=true, Ack=%d", reply, clientSeq)
	}
}

func TestAcceptSynDroppedOverRateLimit(t *testing.T) {
	reg := NewRegistry()
	sender := &recordingSender{}
	peer := testPeer(21)
	for i := 0; i < DefaultSynRateLimit; i++ {
		if _, ok := AcceptSyn(reg, peer, uint32(100+i), sender, Config{}); !ok {
			t.Fatalf("attempt %d unexpectedly rate-limited", i)
		}
	}
	if _, ok := AcceptSyn(reg, peer, 999, sender, Config{}); ok {
		t.Fatal("expected attempt beyond rate limit to be dropped")
	}
}

func TestFullHandshakeBothSides(t *testing.T) {
	acceptorReg := NewRegistry()
	acceptorSender := &recordingSender{}
	clientSeq := uint32(100)
	acceptorConn, ok := AcceptSyn(acceptorReg, testPeer(22), clientSeq, acceptorSender, Config{})
	if !ok {
		t.Fatal("accept failed")
	}
	synAckReply, err := protocol.Decode(acceptorSender.sent[0])
	if err != nil {
		t.Fatalf("Decode SYN-ACK: %v", err)
	}

	initiatorReg := NewRegistry()
	initiatorRel := reliability.New(reliability.Config{RecvWindowSize: 64, InitialSendSeq: clientSeq})
	initiatorCong := congestion.New(congestion.Config{})
	initiatorConn := initiatorReg.Open(testPeer(23), initiatorRel, initiatorCong)
	initiatorConn.BeginActiveOpen()

	initiatorSender := &recordingSender{}
	OnSynAck(initiatorConn, synAckReply, initiatorSender)
	if initiatorConn.State() != StateEstablished {
		t.Fatalf("initiator state = %v, want Established", initiatorConn.State())
	}
	if len(initiatorSender.sent) != 1 {
		t.Fatalf("expected initiator to send a final ACK, got %d frames", len(initiatorSender.sent))
	}
	finalAck, err := protocol.Decode(initiatorSender.sent[0])
	if err != nil {
		t.Fatalf("Decode final ACK: %v", err)
	}
	if finalAck.Tag != protocol.TagACK || !finalAck.HasAck || finalAck.Ack != synAckReply.Sequence {
		t.Fatalf("final ACK = %+v, want HasAck=true, Ack=%d", finalAck, synAckReply.Sequence)
	}
	if got := initiatorRel.NextExpectedRecv(); got != synAckReply.Sequence+1 {
		t.Fatalf("initiator NextExpectedRecv = %d, want %d", got, synAckReply.Sequence+1)
	}

	OnAck(acceptorConn)
	if acceptorConn.State() != StateEstablished {
		t.Fatalf("acceptor state = %v, want Established", acceptorConn.State())
	}
}
