package tcpchat

import (
	"net"
	"testing"
	"time"

	"github.com/wqdsca/policethief-go/internal/heartbeat"
	"github.com/wqdsca/policethief-go/internal/room"
)

func TestHandleConnRequiresConnectFirst(t *testing.T) {
	server, client := net.Pipe()
	fabric := room.New(room.Config{})

	done := make(chan error, 1)
	go func() { done <- HandleConn(server, fabric, heartbeat.PathConfig{}) }()

	bad, _ := Encode(TypeHeartBeat, struct{}{})
	WriteFrame(client, bad)

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected HandleConn to reject a non-Connect first frame")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for HandleConn to reject first frame")
	}
	client.Close()
}

func TestHandleConnAcksConnectAndJoinsRoom(t *testing.T) {
	server, client := net.Pipe()
	fabric := room.New(room.Config{Notifier: Notifier})
	roomID, _ := fabric.CreateRoom("lobby", time.Now())

	go HandleConn(server, fabric, heartbeat.PathConfig{Interval: time.Minute, Timeout: 3 * time.Minute})
	defer client.Close()

	connectFrame, _ := Encode(TypeConnect, Connect{UserID: 1, Nickname: "alice"})
	if err := WriteFrame(client, connectFrame); err != nil {
		t.Fatalf("WriteFrame connect: %v", err)
	}

	ack, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame ack: %v", err)
	}
	if ack.Type != TypeConnectionAck {
		t.Fatalf("ack type = %v, want connection_ack", ack.Type)
	}

	joinFrame, _ := Encode(TypeRoomJoin, RoomJoin{RoomID: roomID})
	if err := WriteFrame(client, joinFrame); err != nil {
		t.Fatalf("WriteFrame join: %v", err)
	}

	success, err := ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame join success: %v", err)
	}
	if success.Type != TypeJoinSuccess {
		t.Fatalf("frame type = %v, want join_success", success.Type)
	}
	var payload JoinSuccess
	if err := decodePayload(success, &payload); err != nil {
		t.Fatalf("decode JoinSuccess: %v", err)
	}
	if payload.RoomID != roomID || payload.UserCount != 1 {
		t.Fatalf("JoinSuccess = %+v, want room %d with 1 user", payload, roomID)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snap, ok := fabric.RoomSnapshot(roomID); ok && snap.CurrentUsers == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected user to join the room via RoomJoin frame")
}
