// Package protocol implements the RUDP wire format: a fixed header, a
// variable SACK block, and a payload. It mirrors the encode/decode split the
// teacher's source/protocol/raknet.go uses for RakNet datagrams, generalized
// to the tagged-union Packet the spec describes instead of SA-MP's packet-ID
// soup.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Tag identifies the kind of a Packet. Values are fixed by the wire format
// and must not be renumbered without an interop break.
type Tag byte

const (
	TagSYN Tag = iota
	TagSYNACK
	TagACK
	TagDATA
	TagSACK
	TagKEEPALIVE
	TagFIN
	TagRST
	// TagInvalid never appears on the wire; it marks a Packet that failed
	// to decode cleanly and must not be acted on.
	TagInvalid Tag = 0xFF
)

func (t Tag) String() string {
	switch t {
	case TagSYN:
		return "SYN"
	case TagSYNACK:
		return "SYN-ACK"
	case TagACK:
		return "ACK"
	case TagDATA:
		return "DATA"
	case TagSACK:
		return "SACK"
	case TagKEEPALIVE:
		return "KEEPALIVE"
	case TagFIN:
		return "FIN"
	case TagRST:
		return "RST"
	default:
		return "INVALID"
	}
}

// Wire layout constants.
const (
	flagHasAck    = 1 << 0
	flagHasSack   = 1 << 1
	flagReliable  = 1 << 2
	minHeaderSize = 1 + 1 + 1 + 1 + 8 + 4 + 4 + 8 + 2 // tag,flags,sack_count,reserved,conn_id,sequence,ack,timestamp,payload_len
	sackBlockSize = 8                                  // (start:u32, end:u32)

	// DefaultMTU keeps a RUDP datagram under typical path MTU without
	// fragmentation; see spec.md §4.1.
	DefaultMTU = 1400
	// MaxDatagramSize bounds total encoded size regardless of configured MTU.
	MaxDatagramSize = 1400
)

// AckRange is an inclusive, coalesced SACK block: sequences in
// [Start, End] have been received but are not covered by the cumulative Ack.
type AckRange struct {
	Start uint32
	End   uint32
}

// Packet is the in-memory representation of one RUDP datagram.
type Packet struct {
	Tag       Tag
	Sequence  uint32
	HasAck    bool
	Ack       uint32
	AckRanges []AckRange
	Timestamp uint64
	Reliable  bool
	ConnID    uint64
	Payload   []byte
}

// DecodeError reports a malformed datagram. The decoder never panics; every
// rejection path returns one of these instead.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "protocol: decode error: " + e.Reason }

// CoalesceRanges sorts ack ranges by Start and merges adjacent/overlapping
// ones, dropping anything at or below cum (the cumulative ack point) per the
// invariant in spec.md §3: "SACK ack_ranges never include a sequence ≤ ack".
func CoalesceRanges(ranges []AckRange, cum uint32) []AckRange {
	if len(ranges) == 0 {
		return nil
	}
	filtered := make([]AckRange, 0, len(ranges))
	for _, r := range ranges {
		if r.End <= cum {
			continue
		}
		if r.Start <= cum {
			r.Start = cum + 1
		}
		if r.Start > r.End {
			continue
		}
		filtered = append(filtered, r)
	}
	if len(filtered) == 0 {
		return nil
	}
	insertionSort(filtered)

	out := filtered[:1]
	for _, r := range filtered[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// insertionSort sorts by Start ascending. Ranges in flight per connection
// are few (bounded by the receive window), so an O(n^2) sort avoids pulling
// in sort.Slice's interface overhead for the common small-N case.
func insertionSort(r []AckRange) {
	for i := 1; i < len(r); i++ {
		v := r[i]
		j := i - 1
		for j >= 0 && r[j].Start > v.Start {
			r[j+1] = r[j]
			j--
		}
		r[j+1] = v
	}
}

// Encode serializes p into its wire form. The caller is responsible for
// having coalesced AckRanges (e.g. via CoalesceRanges) before calling this;
// Encode does not re-sort.
func (p *Packet) Encode() ([]byte, error) {
	if len(p.Payload) > DefaultMTU-minHeaderSize {
		return nil, fmt.Errorf("protocol: payload of %d bytes exceeds MTU budget", len(p.Payload))
	}
	if len(p.AckRanges) > 255 {
		return nil, fmt.Errorf("protocol: %d sack ranges exceeds 255 block limit", len(p.AckRanges))
	}

	size := minHeaderSize + sackBlockSize*len(p.AckRanges) + len(p.Payload)
	if size > MaxDatagramSize {
		return nil, fmt.Errorf("protocol: encoded size %d exceeds MaxDatagramSize %d", size, MaxDatagramSize)
	}
	buf := make([]byte, size)

	buf[0] = byte(p.Tag)
	var flags byte
	if p.HasAck {
		flags |= flagHasAck
	}
	if len(p.AckRanges) > 0 {
		flags |= flagHasSack
	}
	if p.Reliable {
		flags |= flagReliable
	}
	buf[1] = flags
	buf[2] = byte(len(p.AckRanges))
	buf[3] = 0 // reserved

	binary.BigEndian.PutUint64(buf[4:12], p.ConnID)
	binary.BigEndian.PutUint32(buf[12:16], p.Sequence)
	binary.BigEndian.PutUint32(buf[16:20], p.Ack)
	binary.BigEndian.PutUint64(buf[20:28], p.Timestamp)

	off := 28
	for _, r := range p.AckRanges {
		binary.BigEndian.PutUint32(buf[off:off+4], r.Start)
		binary.BigEndian.PutUint32(buf[off+4:off+8], r.End)
		off += 8
	}

	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(p.Payload)))
	off += 2
	copy(buf[off:], p.Payload)

	return buf, nil
}

// Decode parses a wire datagram into a Packet. It rejects truncated frames,
// unknown tags, and SACK counts that would read past the buffer, never
// panicking on malformed input.
func Decode(data []byte) (*Packet, error) {
	if len(data) < minHeaderSize {
		return nil, &DecodeError{Reason: fmt.Sprintf("frame of %d bytes below minimum header %d", len(data), minHeaderSize)}
	}

	tag := Tag(data[0])
	if tag > TagRST {
		return nil, &DecodeError{Reason: fmt.Sprintf("unknown tag %d", data[0])}
	}

	flags := data[1]
	sackCount := int(data[2])
	// data[3] reserved, ignored on read.

	connID := binary.BigEndian.Uint64(data[4:12])
	sequence := binary.BigEndian.Uint32(data[12:16])
	ack := binary.BigEndian.Uint32(data[16:20])
	timestamp := binary.BigEndian.Uint64(data[20:28])

	off := 28
	sackBytes := sackCount * sackBlockSize
	if off+sackBytes+2 > len(data) {
		return nil, &DecodeError{Reason: "sack block count would read past frame"}
	}

	var ranges []AckRange
	if sackCount > 0 {
		if flags&flagHasSack == 0 {
			return nil, &DecodeError{Reason: "sack blocks present without has_sack flag"}
		}
		ranges = make([]AckRange, sackCount)
		for i := 0; i < sackCount; i++ {
			start := binary.BigEndian.Uint32(data[off : off+4])
			end := binary.BigEndian.Uint32(data[off+4 : off+8])
			if end < start {
				return nil, &DecodeError{Reason: "sack range end before start"}
			}
			ranges[i] = AckRange{Start: start, End: end}
			off += sackBlockSize
		}
		if err := validateSackOrder(ranges, ack, flags&flagHasAck != 0); err != nil {
			return nil, err
		}
	}

	payloadLen := int(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	if off+payloadLen != len(data) {
		return nil, &DecodeError{Reason: fmt.Sprintf("payload_len %d does not match remaining %d bytes", payloadLen, len(data)-off)}
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[off:])

	return &Packet{
		Tag:       tag,
		Sequence:  sequence,
		HasAck:    flags&flagHasAck != 0,
		Ack:       ack,
		AckRanges: ranges,
		Timestamp: timestamp,
		Reliable:  flags&flagReliable != 0,
		ConnID:    connID,
		Payload:   payload,
	}, nil
}

// validateSackOrder enforces spec.md §3: ranges sorted ascending by Start,
// non-overlapping, and none at or below the cumulative ack.
func validateSackOrder(ranges []AckRange, cum uint32, hasAck bool) error {
	for i, r := range ranges {
		if hasAck && r.Start <= cum {
			return &DecodeError{Reason: "sack range at or below cumulative ack"}
		}
		if i > 0 && r.Start <= ranges[i-1].End {
			return &DecodeError{Reason: "sack ranges not sorted or overlapping"}
		}
	}
	return nil
}
