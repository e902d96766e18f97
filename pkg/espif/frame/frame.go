package frame

import (
	"encoding/binary"
	"hash/crc32"
)

// IntronLen is the length of the sync sequence prefixing every message.
const IntronLen = 6

// Intron is the sync sequence prefixing every message on the wire.
// The first two bytes are the fixed protocol marker, the rest is changed
// on every successful AP join.
type Intron [IntronLen]byte

// DefaultIntron is used after boot and after every reset of the co-processor.
var DefaultIntron = Intron{'U', 'N', 0, 1, 2, 3}

// MarkerLen is the number of fixed leading intron bytes.
const MarkerLen = 2

// WithTail returns a copy of the intron with the randomized tail replaced.
func (i Intron) WithTail(tail [IntronLen - MarkerLen]byte) Intron {
	copy(i[MarkerLen:], tail[:])
	return i
}

// Sizes of the fixed parts of a message.
const (
	HeaderLen   = 4
	PreludeLen  = IntronLen + HeaderLen
	TrailerLen  = 4
	MaxPayload  = 0xffff
	OverheadLen = PreludeLen + TrailerLen
)

// Header is the fixed message header following the intron.
// VariableByte carries the protocol version (DeviceInfo), the link up flag
// (Packet), the AP count (ScanAPCount) or the AP index (ScanAPGet/ScanAPInfo).
type Header struct {
	Type         MessageType
	VariableByte byte
	Size         uint16
}

// Put serializes the header into b which must hold HeaderLen bytes.
func (h Header) Put(b []byte) {
	b[0], b[1] = byte(h.Type), h.VariableByte
	binary.BigEndian.PutUint16(b[2:4], h.Size)
}

// ParseHeader decodes a header from HeaderLen bytes.
func ParseHeader(b []byte) Header {
	return Header{
		Type:         MessageType(b[0]),
		VariableByte: b[1],
		Size:         binary.BigEndian.Uint16(b[2:4]),
	}
}

// Prelude is the intron followed by the header, i.e. everything sent
// before the payload.
type Prelude [PreludeLen]byte

// Trailer holds the big-endian CRC32 sent after the payload.
type Trailer [TrailerLen]byte

// Checksum returns the checksum carried by the trailer.
func (t Trailer) Checksum() uint32 {
	return binary.BigEndian.Uint32(t[:])
}

// Encoded is a message ready for transmission. The payload itself is not
// copied, it is sent segment by segment between Prelude and Trailer.
type Encoded struct {
	Prelude Prelude
	Trailer Trailer
}

// Encode builds the prelude and trailer for a message with a segmented
// payload. The checksum is computed over intron, header and all segments
// without joining them.
func Encode(intron Intron, typ MessageType, variableByte byte, payload [][]byte) Encoded {
	var size int
	for _, seg := range payload {
		size += len(seg)
	}
	if size > MaxPayload {
		panic("frame: payload too large")
	}
	var enc Encoded
	copy(enc.Prelude[:IntronLen], intron[:])
	Header{Type: typ, VariableByte: variableByte, Size: uint16(size)}.Put(enc.Prelude[IntronLen:])
	crc := Update(0, enc.Prelude[:])
	for _, seg := range payload {
		crc = Update(crc, seg)
	}
	binary.BigEndian.PutUint32(enc.Trailer[:], crc)
	return enc
}

// Append appends one complete contiguous message to dst.
func Append(dst []byte, intron Intron, typ MessageType, variableByte byte, payload []byte) []byte {
	enc := Encode(intron, typ, variableByte, [][]byte{payload})
	dst = append(dst, enc.Prelude[:]...)
	dst = append(dst, payload...)
	return append(dst, enc.Trailer[:]...)
}

// Update continues a running checksum with more bytes.
func Update(crc uint32, p []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, p)
}

// Verify checks the computed running checksum against the received trailer.
func Verify(computed uint32, trailer Trailer) bool {
	return computed == trailer.Checksum()
}
