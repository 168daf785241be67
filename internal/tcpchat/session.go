package tcpchat

import (
	"io"
	"net"
	"time"

	"github.com/wqdsca/policethief-go/internal/heartbeat"
	"github.com/wqdsca/policethief-go/internal/room"
)

// connWriter adapts a net.Conn into room.Writer. payload is always an
// already-framed [4-byte length][JSON] buffer (built by mustEncode or by
// a caller using WriteFrame into a buffer), since both Broadcast's chat
// path and the fabric's own JoinSuccess/UserJoined/UserLeft
// notifications need to choose the frame's MessageType themselves.
type connWriter struct {
	conn net.Conn
}

func (w *connWriter) Deliver(payload []byte) error {
	_, err := w.conn.Write(payload)
	return err
}

// HandleConn drives one TCP client connection end to end: it enforces
// that Connect is the first frame (any other first frame closes the
// socket, per spec.md), then dispatches subsequent frames against the
// room fabric and heartbeat tracker until the connection closes or
// errors.
func HandleConn(conn net.Conn, fabric *room.Fabric, hb heartbeat.PathConfig) error {
	defer conn.Close()

	first, err := ReadFrame(conn)
	if err != nil {
		return err
	}
	connectMsg, err := DecodeConnect(first)
	if err != nil {
		// First frame was not Connect: close immediately per spec.md's
		// framing rule rather than attempting to recover.
		return err
	}

	ack, err := Encode(TypeConnectionAck, ConnectionAck{ClientID: connectMsg.UserID})
	if err != nil {
		return err
	}
	if err := WriteFrame(conn, ack); err != nil {
		return err
	}

	tracker := heartbeat.NewTracker(hb, time.Now(), func() { conn.Close() })
	defer fabric.DisconnectUser(connectMsg.UserID)

	for {
		frame, err := ReadFrame(conn)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		tracker.RecordActivity(time.Now())

		if err := dispatchFrame(conn, fabric, connectMsg.UserID, connectMsg.Nickname, frame); err != nil {
			errFrame, _ := Encode(TypeError, ErrorMessage{Code: 400, Message: err.Error()})
			WriteFrame(conn, errFrame)
		}
	}
}

func dispatchFrame(conn net.Conn, fabric *room.Fabric, userID uint64, nickname string, frame Frame) error {
	switch frame.Type {
	case TypeHeartBeat:
		resp, err := Encode(TypeHeartBeatResp, HeartBeatResponse{ServerMonotonicMillis: uint64(time.Now().UnixMilli())})
		if err != nil {
			return err
		}
		return WriteFrame(conn, resp)

	case TypeRoomJoin:
		var req RoomJoin
		if err := decodePayload(frame, &req); err != nil {
			return err
		}
		return fabric.Join(userID, nickname, req.RoomID, &connWriter{conn: conn}, time.Now())

	case TypeRoomLeave:
		var req RoomLeave
		if err := decodePayload(frame, &req); err != nil {
			return err
		}
		return fabric.Leave(userID, req.RoomID)

	case TypeChatMessage:
		var msg ChatMessage
		if err := decodePayload(frame, &msg); err != nil {
			return err
		}
		framed := mustEncode(TypeChatMessage, ChatMessage{RoomID: msg.RoomID, Text: msg.Text})
		_, err := fabric.Broadcast(msg.RoomID, framed, userID)
		return err

	default:
		return errUnhandledType(frame.Type)
	}
}

type errUnhandledType MessageType

func (e errUnhandledType) Error() string { return "tcpchat: unhandled frame type " + string(e) }

func decodePayload(frame Frame, out interface{}) error {
	return decodeJSON(frame.Payload, out)
}
