package tcpchat

import (
	"bytes"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	frame, err := Encode(TypeChatMessage, ChatMessage{RoomID: 5, Text: "hi"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Type != TypeChatMessage {
		t.Fatalf("type = %v, want chat", got.Type)
	}

	var msg ChatMessage
	if err := decodeJSON(got.Payload, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.RoomID != 5 || msg.Text != "hi" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // length far exceeding MaxFrameSize
	if _, err := ReadFrame(&buf); err != ErrFrameTooLarge {
		t.Fatalf("err = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodeConnectRejectsWrongType(t *testing.T) {
	frame, _ := Encode(TypeHeartBeat, struct{}{})
	if _, err := DecodeConnect(frame); err == nil {
		t.Fatal("expected error decoding non-Connect frame as Connect")
	}
}
