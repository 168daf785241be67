// Package tcpchat implements the TCP companion path: a 4-byte big-endian
// length-prefixed JSON tagged-union framing over a plain net.Conn. It is
// grounded in original_source/tcpserver's GameMessage enum
// (service/message_service.rs's get_message_type match arms: HeartBeat,
// HeartBeatResponse, ConnectionAck, Error, RoomJoin, RoomLeave,
// ChatMessage, Connect, ...), translated from Rust's serde-tagged enum to
// a Go tagged struct with an explicit Type discriminator, and from framing
// implied by tokio's length-delimited codec use elsewhere in the original
// to an explicit io.Reader/io.Writer pair here.
package tcpchat

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MessageType discriminates the JSON payload carried by one Frame.
type MessageType string

const (
	TypeConnect         MessageType = "connect"
	TypeConnectionAck   MessageType = "connection_ack"
	TypeHeartBeat       MessageType = "heartbeat"
	TypeHeartBeatResp   MessageType = "heartbeat_response"
	TypeRoomJoin        MessageType = "room_join"
	TypeRoomLeave       MessageType = "room_leave"
	TypeJoinSuccess     MessageType = "join_success"
	TypeUserJoined      MessageType = "user_joined"
	TypeUserLeft        MessageType = "user_left"
	TypeChatMessage     MessageType = "chat"
	TypeError           MessageType = "error"
)

// Connect is the mandatory first frame a client must send, per
// original_source's Connect variant and spec.md's "Connect must be the
// first frame" rule.
type Connect struct {
	UserID   uint64 `json:"user_id"`
	Nickname string `json:"nickname"`
}

// ConnectionAck acknowledges a successful Connect, mirroring
// connection_handler.rs's `GameMessage::ConnectionAck { client_id }`.
type ConnectionAck struct {
	ClientID uint64 `json:"client_id"`
}

// HeartBeatResponse carries the same payload as internal/heartbeat.Response.
type HeartBeatResponse struct {
	ServerMonotonicMillis uint64 `json:"server_monotonic_millis"`
}

// RoomJoin requests membership in a room.
type RoomJoin struct {
	RoomID uint64 `json:"room_id"`
}

// RoomLeave requests leaving the current room.
type RoomLeave struct {
	RoomID uint64 `json:"room_id"`
}

// JoinSuccess is sent to the joiner alone once Join succeeds, per
// spec.md §4.6's join sequence.
type JoinSuccess struct {
	RoomID    uint64 `json:"room_id"`
	UserCount int    `json:"user_count"`
}

// UserJoined is broadcast to every other member of a room once a new
// user joins it, per spec.md §4.6.
type UserJoined struct {
	UserID    uint64 `json:"user_id"`
	Nickname  string `json:"nickname"`
	UserCount int    `json:"user_count"`
}

// UserLeft is broadcast to the remaining members of a room once a user
// leaves it, per spec.md §4.6.
type UserLeft struct {
	UserID    uint64 `json:"user_id"`
	Nickname  string `json:"nickname"`
	UserCount int    `json:"user_count"`
}

// ChatMessage carries a broadcast-bound text payload.
type ChatMessage struct {
	RoomID uint64 `json:"room_id"`
	Text   string `json:"text"`
}

// ErrorMessage reports a protocol or application error to the client.
type ErrorMessage struct {
	Code    uint16 `json:"code"`
	Message string `json:"message"`
}

// Frame is the envelope written on the wire: a type tag plus a raw JSON
// payload whose shape is determined by Type.
type Frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MaxFrameSize bounds the 4-byte length prefix to a sane ceiling, so a
// corrupt or hostile peer cannot make ReadFrame allocate unbounded memory.
const MaxFrameSize = 1 << 20 // 1 MiB

var ErrFrameTooLarge = errors.New("tcpchat: frame exceeds MaxFrameSize")

// WriteFrame serializes frame and writes it to w as [4-byte BE length][JSON].
func WriteFrame(w io.Writer, frame Frame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("tcpchat: marshal frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

// ReadFrame reads one [4-byte BE length][JSON] frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return Frame{}, ErrFrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, err
	}
	var frame Frame
	if err := json.Unmarshal(body, &frame); err != nil {
		return Frame{}, fmt.Errorf("tcpchat: unmarshal frame: %w", err)
	}
	return frame, nil
}

// Encode builds a Frame from a typed payload.
func Encode(t MessageType, payload interface{}) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: raw}, nil
}

// DecodeConnect unmarshals frame.Payload as Connect, erroring if Type
// does not match.
func DecodeConnect(frame Frame) (Connect, error) {
	var c Connect
	if frame.Type != TypeConnect {
		return c, fmt.Errorf("tcpchat: expected %s frame, got %s", TypeConnect, frame.Type)
	}
	err := json.Unmarshal(frame.Payload, &c)
	return c, err
}

func decodeJSON(raw json.RawMessage, out interface{}) error {
	return json.Unmarshal(raw, out)
}

// notifier implements room.Notifier by encoding each membership event as
// the same length-prefixed JSON frame used elsewhere on this transport,
// so room.Fabric's JoinSuccess/UserJoined/UserLeft notifications reach
// TCP and QUIC (quicedge reuses this same framing) clients identically.
type notifier struct{}

// Notifier is the room.Notifier every tcpchat/quicedge fabric should be
// constructed with.
var Notifier notifier

func (notifier) EncodeJoinSuccess(roomID uint64, userCount int) []byte {
	return mustEncode(TypeJoinSuccess, JoinSuccess{RoomID: roomID, UserCount: userCount})
}

func (notifier) EncodeUserJoined(userID uint64, nickname string, userCount int) []byte {
	return mustEncode(TypeUserJoined, UserJoined{UserID: userID, Nickname: nickname, UserCount: userCount})
}

func (notifier) EncodeUserLeft(userID uint64, nickname string, userCount int) []byte {
	return mustEncode(TypeUserLeft, UserLeft{UserID: userID, Nickname: nickname, UserCount: userCount})
}

// mustEncode serializes a frame payload that is always a plain struct of
// basic fields, so json.Marshal cannot fail; it writes a raw [4-byte
// length][JSON] buffer directly rather than going through WriteFrame,
// since room.Writer.Deliver takes an already-framed payload.
func mustEncode(t MessageType, payload interface{}) []byte {
	frame, err := Encode(t, payload)
	if err != nil {
		return nil
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(body)))
	return append(header, body...)
}
