// Package server wires every subsystem package into one running RUDP
// game server: the dispatcher's socket loop, the connection registry,
// the room fabric and the generic game session. The TCP/QUIC/gRPC/HTTP
// companion adapters are started around it by cmd/rudpserver, using
// Fabric, Stats and BeginDrain. It generalizes the teacher's server.go (the
// piece that owned Server.listen/updateLoop/sessionCleanupLoop) into a
// struct that owns the equivalent goroutines for the new protocol.
package server

import (
	"context"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wqdsca/policethief-go/internal/config"
	"github.com/wqdsca/policethief-go/internal/congestion"
	"github.com/wqdsca/policethief-go/internal/connection"
	"github.com/wqdsca/policethief-go/internal/dispatcher"
	"github.com/wqdsca/policethief-go/internal/game"
	"github.com/wqdsca/policethief-go/internal/heartbeat"
	"github.com/wqdsca/policethief-go/internal/protocol"
	"github.com/wqdsca/policethief-go/internal/reliability"
	"github.com/wqdsca/policethief-go/internal/room"
	"github.com/wqdsca/policethief-go/internal/tcpchat"
)

// Server owns every long-lived subsystem and the goroutines that drive
// them.
type Server struct {
	cfg config.Config
	log *zap.Logger

	reg      *connection.Registry
	fabric   *room.Fabric
	session  *game.Session
	bus      *game.Bus
	disp     *dispatcher.Dispatcher
	sock     *net.UDPConn
	hsConfig connection.Config

	heartbeats map[uint64]*heartbeat.Tracker
}

// New builds a Server from cfg, ready for Run. It does not bind the
// socket until Run is called, so construction can never fail on a port
// conflict.
func New(cfg config.Config, log *zap.Logger) *Server {
	bus := game.NewBus()
	return &Server{
		cfg:     cfg,
		log:     log,
		reg:     connection.NewRegistry(),
		fabric:  room.New(room.Config{MaxRooms: cfg.MaxRooms, MaxUsersPerRoom: cfg.MaxUsersPerRoom, Notifier: tcpchat.Notifier}),
		session: game.NewSession(bus),
		bus:     bus,
		hsConfig: connection.Config{
			RecvWindowSize: uint32(cfg.MaxConnections),
			CwndInit:       cfg.CwndInit,
			CwndMax:        cfg.CwndMax,
			SsthreshInit:   cfg.SsthreshInit,
			RTOMin:         cfg.RTOMin(),
			RTOMax:         cfg.RTOMax(),
		},
		heartbeats: make(map[uint64]*heartbeat.Tracker),
	}
}

// Fabric exposes the room fabric, used by companion adapters
// (tcpchat/quicedge) that share the same room state as the RUDP path.
func (s *Server) Fabric() *room.Fabric { return s.fabric }

// Stats reports a flat snapshot suitable for the admin HTTP and gRPC
// control surfaces.
func (s *Server) Stats() map[string]interface{} {
	roomStats := s.fabric.Stats()
	return map[string]interface{}{
		"connections":    s.reg.Len(),
		"rooms":          roomStats.TotalRooms,
		"room_users":     roomStats.TotalUsers,
		"max_rooms":      roomStats.MaxRooms,
		"max_room_users": roomStats.MaxUsersPerRoom,
		"players":        s.session.Count(),
	}
}

// BeginDrain starts a shutdown in the background: it waits until the
// connection registry is empty or 5 s have passed, then stops the
// dispatcher. No FIN is sent to established connections.
// It satisfies grpcctl.Drainer.
func (s *Server) BeginDrain() error {
	s.log.Info("drain requested")
	go s.drain(connection.DefaultMaxHandshakeRetries * time.Second)
	return nil
}

func (s *Server) drain(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.reg.Len() == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.disp.Stop()
}

// Run binds the UDP socket and blocks serving until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.BindAddr)
	if err != nil {
		return err
	}
	sock, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.sock = sock

	s.disp = dispatcher.New(sock, s.reg, s.handlePacket)
	s.disp.SetTimerHandler(s.handleTimer)

	go s.scheduleRecurringTimers()

	go func() {
		<-ctx.Done()
		s.disp.Stop()
	}()

	s.log.Info("rudp listener started", zap.String("addr", s.cfg.BindAddr))
	return s.disp.Run()
}

func (s *Server) scheduleRecurringTimers() {
	s.disp.ScheduleTimer(dispatcher.TimerIdleSweep, 0, time.Now().Add(connection.DefaultIdleSweepPeriod))
}

func (s *Server) handleTimer(kind dispatcher.TimerKind, connID uint64) {
	switch kind {
	case dispatcher.TimerIdleSweep:
		evicted := s.reg.SweepIdle(time.Now(), s.cfg.IdleTimeout())
		for _, id := range evicted {
			s.disp.CloseQueue(id)
			s.session.Leave(id, time.Now())
			s.fabric.DisconnectUser(id)
		}
		s.disp.ScheduleTimer(dispatcher.TimerIdleSweep, 0, time.Now().Add(connection.DefaultIdleSweepPeriod))
	case dispatcher.TimerRTO:
		s.handleRTOTimer(connID)
	case dispatcher.TimerHeartbeat:
		s.handleHeartbeatTimer(connID)
	}
}

func (s *Server) handleRTOTimer(connID uint64) {
	conn, ok := s.reg.Lookup(connID)
	if !ok || conn.IsClosed() {
		return
	}
	rto := conn.Congestion.RTO()
	conn.Reliability.RetransmitTick(time.Now(), rto, func(seq uint32, payload []byte) {
		pkt := &protocol.Packet{Tag: protocol.TagDATA, ConnID: conn.ID, Sequence: seq, Reliable: true, Payload: payload, Timestamp: nowMillis()}
		s.sendPacket(conn, pkt)
	})
	s.disp.ScheduleTimer(dispatcher.TimerRTO, connID, time.Now().Add(rto))
}

func (s *Server) handleHeartbeatTimer(connID uint64) {
	conn, ok := s.reg.Lookup(connID)
	if !ok || conn.IsClosed() {
		return
	}
	tracker, ok := s.heartbeats[connID]
	if ok && tracker.CheckTimeout(time.Now()) {
		s.closeConnection(conn)
		return
	}
	pkt := &protocol.Packet{Tag: protocol.TagKEEPALIVE, ConnID: conn.ID, Timestamp: nowMillis()}
	s.sendPacket(conn, pkt)
	s.disp.ScheduleTimer(dispatcher.TimerHeartbeat, connID, time.Now().Add(s.cfg.HeartbeatInterval()))
}

func (s *Server) handlePacket(peer *net.UDPAddr, pkt *protocol.Packet) {
	switch pkt.Tag {
	case protocol.TagSYN:
		s.handleSyn(peer, pkt)
	case protocol.TagSYNACK:
		s.handleSynAck(peer, pkt)
	case protocol.TagACK:
		s.handleAck(peer, pkt)
	case protocol.TagDATA:
		s.handleData(peer, pkt)
	case protocol.TagSACK:
		s.handleSack(peer, pkt)
	case protocol.TagKEEPALIVE:
		s.handleKeepAlive(peer)
	case protocol.TagFIN:
		s.handleFin(peer)
	case protocol.TagRST:
		s.handleRst(peer)
	}
}

func (s *Server) handleSyn(peer *net.UDPAddr, pkt *protocol.Packet) {
	conn, ok := connection.AcceptSyn(s.reg, peer, pkt.Sequence, udpSender{s.sock}, s.hsConfig)
	if !ok || conn == nil {
		return
	}
	s.disp.ScheduleTimer(dispatcher.TimerHeartbeat, conn.ID, time.Now().Add(s.cfg.HeartbeatInterval()))
	s.heartbeats[conn.ID] = heartbeat.NewTracker(heartbeat.PathConfig{
		Interval: s.cfg.HeartbeatInterval(),
		Timeout:  s.cfg.ConnectionTimeout(),
	}, time.Now(), func() {})
}

func (s *Server) handleSynAck(peer *net.UDPAddr, pkt *protocol.Packet) {
	conn, ok := s.reg.Lookup(pkt.ConnID)
	if !ok {
		return
	}
	connection.OnSynAck(conn, pkt, udpSender{s.sock})
	conn.Touch(time.Now())
}

func (s *Server) handleAck(peer *net.UDPAddr, pkt *protocol.Packet) {
	conn, ok := s.reg.Lookup(pkt.ConnID)
	if !ok {
		return
	}
	connection.OnAck(conn)
	conn.Touch(time.Now())
	if pkt.HasAck {
		conn.Reliability.OnAck(pkt.Ack, pkt.AckRanges)
	}
}

func (s *Server) handleSack(peer *net.UDPAddr, pkt *protocol.Packet) {
	conn, ok := s.reg.Lookup(pkt.ConnID)
	if !ok {
		return
	}
	conn.Touch(time.Now())
	acked := conn.Reliability.OnAck(pkt.Ack, pkt.AckRanges)
	conn.Congestion.OnAckReceived(uint32(acked))
}

func (s *Server) handleData(peer *net.UDPAddr, pkt *protocol.Packet) {
	conn, ok := s.reg.Lookup(pkt.ConnID)
	if !ok {
		return
	}
	conn.Touch(time.Now())
	if tracker, ok := s.heartbeats[conn.ID]; ok {
		tracker.RecordActivity(time.Now())
	}

	if pkt.Reliable {
		deliverable, _ := conn.Reliability.OnReceive(pkt.Sequence, pkt.Payload)
		for _, payload := range deliverable {
			s.handlePayload(conn, payload)
		}
		cum, ranges := conn.Reliability.BuildSack()
		reply := &protocol.Packet{Tag: protocol.TagSACK, ConnID: conn.ID, HasAck: true, Ack: cum, AckRanges: ranges, Timestamp: nowMillis()}
		s.sendPacket(conn, reply)
	} else {
		s.handlePayload(conn, pkt.Payload)
	}
}

// handlePayload interprets an application-layer payload as a game.Event
// encoded by the caller; the exact encoding is left to the companion
// adapters (this server treats payload as an opaque command line: "name
// arg1 arg2").
func (s *Server) handlePayload(conn *connection.Connection, payload []byte) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return
	}
	s.session.Dispatch(conn.ID, fields[0], fields[1:], time.Now())
}

func (s *Server) handleKeepAlive(peer *net.UDPAddr) {
	conn, ok := s.reg.LookupByPeer(peer)
	if !ok {
		return
	}
	conn.Touch(time.Now())
	if tracker, ok := s.heartbeats[conn.ID]; ok {
		tracker.RecordActivity(time.Now())
	}
}

func (s *Server) handleFin(peer *net.UDPAddr) {
	conn, ok := s.reg.LookupByPeer(peer)
	if !ok {
		return
	}
	conn.BeginClose()
	if conn.Drained() {
		s.closeConnection(conn)
	}
}

func (s *Server) handleRst(peer *net.UDPAddr) {
	conn, ok := s.reg.LookupByPeer(peer)
	if !ok {
		return
	}
	s.closeConnection(conn)
}

func (s *Server) closeConnection(conn *connection.Connection) {
	conn.Close()
	s.reg.Remove(conn.ID)
	s.disp.CloseQueue(conn.ID)
	delete(s.heartbeats, conn.ID)
	s.session.Leave(conn.ID, time.Now())
	s.fabric.DisconnectUser(conn.ID)
}

func (s *Server) sendPacket(conn *connection.Connection, pkt *protocol.Packet) {
	data, err := pkt.Encode()
	if err != nil {
		s.log.Warn("encode outbound packet failed", zap.Error(err))
		return
	}
	if err := s.disp.Enqueue(conn.ID, conn.PeerAddr, data); err != nil {
		s.log.Debug("outbound queue busy", zap.Uint64("conn_id", conn.ID))
	}
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

type udpSender struct{ sock *net.UDPConn }

func (u udpSender) SendTo(addr *net.UDPAddr, data []byte) error {
	_, err := u.sock.WriteToUDP(data, addr)
	return err
}
