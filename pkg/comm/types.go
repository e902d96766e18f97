// Package comm defines packet oriented channels carrying the network frames
// exchanged with the bridge.
package comm

import "errors"

// ErrPacketTooLarge indicates a packet beyond MaxPacketSize.
var ErrPacketTooLarge = errors.New("packet too large")

// MaxPacketSize is the largest frame carried by the co-processor link.
const MaxPacketSize = 0xffff

// PacketReader reads packets in bytes.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}
