package quicedge

import (
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// streamConn adapts a quic.Stream plus its owning quic.Connection into a
// net.Conn, so tcpchat.HandleConn can serve QUIC streams with the exact
// same framing and handshake logic it uses for plain TCP sockets.
type streamConn struct {
	quic.Stream
	conn quic.Connection
}

func (s *streamConn) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *streamConn) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *streamConn) SetDeadline(t time.Time) error {
	if err := s.Stream.SetReadDeadline(t); err != nil {
		return err
	}
	return s.Stream.SetWriteDeadline(t)
}
