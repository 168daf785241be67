package protocol

import "testing"

func TestRoundTripDataPacket(t *testing.T) {
	p := &Packet{
		Tag:       TagDATA,
		Sequence:  101,
		HasAck:    true,
		Ack:       500,
		AckRanges: []AckRange{{Start: 502, End: 503}},
		Timestamp: 123456789,
		Reliable:  true,
		ConnID:    77,
		Payload:   []byte("hi"),
	}

	data, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Tag != p.Tag || got.Sequence != p.Sequence || got.Ack != p.Ack ||
		got.ConnID != p.ConnID || got.Reliable != p.Reliable || string(got.Payload) != string(p.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, p)
	}
	if len(got.AckRanges) != 1 || got.AckRanges[0] != p.AckRanges[0] {
		t.Fatalf("ack ranges mismatch: got %v", got.AckRanges)
	}
}

func TestRoundTripControlFrames(t *testing.T) {
	for _, tag := range []Tag{TagSYN, TagSYNACK, TagACK, TagKEEPALIVE, TagFIN, TagRST} {
		p := &Packet{Tag: tag, Sequence: 1, ConnID: 5, Timestamp: 99}
		data, err := p.Encode()
		if err != nil {
			t.Fatalf("tag %v: Encode: %v", tag, err)
		}
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("tag %v: Decode: %v", tag, err)
		}
		if got.Tag != tag || len(got.Payload) != 0 {
			t.Errorf("tag %v round trip mismatch: %+v", tag, got)
		}
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	if _, err := Decode(make([]byte, minHeaderSize-1)); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	p := &Packet{Tag: TagRST, ConnID: 1}
	data, _ := p.Encode()
	data[0] = 0x7F
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeRejectsTruncatedSack(t *testing.T) {
	p := &Packet{Tag: TagDATA, ConnID: 1, HasAck: true, Ack: 10, AckRanges: []AckRange{{Start: 11, End: 12}}}
	data, _ := p.Encode()
	// Claim one more SACK block than actually present.
	data[2] = 2
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for sack count reading past frame")
	}
}

func TestDecodeRejectsBadPayloadLen(t *testing.T) {
	p := &Packet{Tag: TagDATA, ConnID: 1, Payload: []byte("abc")}
	data, _ := p.Encode()
	data[len(data)-4] = 0xFF // corrupt payload_len low byte
	if _, err := Decode(data); err == nil {
		t.Fatal("expected error for mismatched payload length")
	}
}

func TestCoalesceRangesSortsMergesAndDropsBelowCum(t *testing.T) {
	in := []AckRange{
		{Start: 20, End: 21},
		{Start: 5, End: 8}, // entirely at/below cum, dropped
		{Start: 12, End: 13},
		{Start: 14, End: 15}, // adjacent to previous, merges
	}
	out := CoalesceRanges(in, 10)

	want := []AckRange{{Start: 12, End: 15}, {Start: 20, End: 21}}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v, want %v", out, want)
		}
	}
}

func TestCoalesceRangesEmpty(t *testing.T) {
	if out := CoalesceRanges(nil, 0); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestMaxPayloadRejected(t *testing.T) {
	p := &Packet{Tag: TagDATA, ConnID: 1, Payload: make([]byte, DefaultMTU)}
	if _, err := p.Encode(); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}
