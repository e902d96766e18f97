// Package stream carries packets over a byte stream, e.g. stdio or a pipe.
package stream

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/robotalks/espnic/pkg/comm"
)

// ReadWriter implements PacketReadWriter.
// Each packet is prefixed by 2-byte (big-endian) length, the same as the
// size field of the co-processor header.
type ReadWriter struct {
	io.ReadWriter

	writeLock sync.Mutex
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	var size [2]byte
	if _, err := io.ReadFull(p, size[:]); err != nil {
		return nil, err
	}
	pkt := make([]byte, binary.BigEndian.Uint16(size[:]))
	if _, err := io.ReadFull(p, pkt); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements PacketWriter. The prefix and the packet are
// written at once so concurrent writers do not interleave.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) > comm.MaxPacketSize {
		return comm.ErrPacketTooLarge
	}
	buf := make([]byte, 2+len(pkt))
	binary.BigEndian.PutUint16(buf, uint16(len(pkt)))
	copy(buf[2:], pkt)
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	_, err := p.Write(buf)
	return err
}

// Close closes the underlying stream if it is an io.Closer.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
