package stp

import (
	"encoding/binary"
	"fmt"
)

// SegType enumerates the four STP segment kinds.
type SegType uint16

const (
	SegData SegType = 0
	SegAck  SegType = 1
	SegSyn  SegType = 2
	SegFin  SegType = 3
)

func (t SegType) String() string {
	switch t {
	case SegData:
		return "DATA"
	case SegAck:
		return "ACK"
	case SegSyn:
		return "SYN"
	case SegFin:
		return "FIN"
	default:
		return fmt.Sprintf("TYPE(%d)", uint16(t))
	}
}

func (t SegType) valid() bool {
	switch t {
	case SegData, SegAck, SegSyn, SegFin:
		return true
	default:
		return false
	}
}

// headerLen is the fixed 4-byte STP header: 2 bytes type, 2 bytes seqno.
const headerLen = 4

// MSS is the maximum payload size of a DATA segment.
const MSS = 1000

// MaxDatagram is the largest possible STP datagram on the wire.
const MaxDatagram = headerLen + MSS

// Segment is a decoded STP segment: a 4-byte header plus optional payload.
// Payload is nil for SYN, ACK, and FIN; present (1..MSS bytes) for DATA.
type Segment struct {
	Type    SegType
	Seqno   uint16
	Payload []byte
}

// Encode writes the wire representation: type, seqno (both big-endian),
// then payload.
func Encode(segtype SegType, seqno uint16, payload []byte) []byte {
	buf := make([]byte, headerLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(segtype))
	binary.BigEndian.PutUint16(buf[2:4], seqno)
	copy(buf[headerLen:], payload)
	return buf
}

// Decode parses a wire datagram into a Segment. It returns MalformedSegment
// if the datagram is shorter than the header or carries an unknown type.
func Decode(raw []byte) (Segment, error) {
	if len(raw) < headerLen {
		return Segment{}, &MalformedSegment{Reason: fmt.Sprintf("short datagram: %d bytes", len(raw))}
	}
	segtype := SegType(binary.BigEndian.Uint16(raw[0:2]))
	if !segtype.valid() {
		return Segment{}, &MalformedSegment{Reason: fmt.Sprintf("unknown segment type %d", uint16(segtype))}
	}
	seqno := binary.BigEndian.Uint16(raw[2:4])
	var payload []byte
	if len(raw) > headerLen {
		payload = raw[headerLen:]
	}
	return Segment{Type: segtype, Seqno: seqno, Payload: payload}, nil
}
