// Package rx reassembles messages from the co-processor receive stream.
package rx

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
)

// SmallBufferSize bounds the payload of non-packet messages.
const SmallBufferSize = 64

type parseState int

const (
	stateIntron  parseState = iota // searching for the intron
	stateHeader                    // reading header bytes
	stateBody                      // reading a control message payload into the small buffer
	statePacket                    // reading a packet payload into the packet buffer
	stateTrailer                   // reading the checksum
)

// Stats counts parser events.
type Stats struct {
	Messages       uint64
	ChecksumErrors uint64
	AllocErrors    uint64
	Oversized      uint64
	Malformed      uint64
}

type counters struct {
	messages       atomic.Uint64
	checksumErrors atomic.Uint64
	allocErrors    atomic.Uint64
	oversized      atomic.Uint64
	malformed      atomic.Uint64
}

// Parser is a restartable byte stream parser. It accepts chunks of any size,
// a message may start, continue or end anywhere in a chunk.
// Feed, SetIntron and Reset must be called from a single goroutine.
type Parser struct {
	alloc pbuf.Allocator

	intron  frame.Intron
	fail    [frame.IntronLen]int
	matched int

	state   parseState
	read    int
	hdr     [frame.HeaderLen]byte
	header  frame.Header
	crc     uint32
	small   [SmallBufferSize]byte
	trailer frame.Trailer

	packet *pbuf.Buffer
	seg    int
	off    int

	stats counters
}

// New creates a Parser allocating packet buffers from alloc.
func New(alloc pbuf.Allocator) *Parser {
	p := &Parser{alloc: alloc}
	p.setIntron(frame.DefaultIntron)
	return p
}

// Intron returns the sync sequence currently searched for.
func (p *Parser) Intron() frame.Intron {
	return p.intron
}

// SetIntron changes the sync sequence. A message being read is not affected.
func (p *Parser) SetIntron(intron frame.Intron) {
	if intron == p.intron {
		return
	}
	p.setIntron(intron)
	if p.state == stateIntron {
		p.matched = 0
	}
}

func (p *Parser) setIntron(intron frame.Intron) {
	p.intron = intron
	p.fail[0] = 0
	for i, k := 1, 0; i < frame.IntronLen; i++ {
		for k > 0 && intron[i] != intron[k] {
			k = p.fail[k-1]
		}
		if intron[i] == intron[k] {
			k++
		}
		p.fail[i] = k
	}
}

// Reset drops any partially received message and restarts intron search.
func (p *Parser) Reset() {
	p.resync()
}

// Stats returns a snapshot of the counters.
func (p *Parser) Stats() Stats {
	return Stats{
		Messages:       p.stats.messages.Load(),
		ChecksumErrors: p.stats.checksumErrors.Load(),
		AllocErrors:    p.stats.allocErrors.Load(),
		Oversized:      p.stats.oversized.Load(),
		Malformed:      p.stats.malformed.Load(),
	}
}

// Feed consumes one chunk of received bytes. Completed messages are passed
// to h in order.
func (p *Parser) Feed(chunk []byte, h Handler) {
	for len(chunk) > 0 {
		switch p.state {
		case stateIntron:
			b := chunk[0]
			chunk = chunk[1:]
			p.matchIntron(b)
		case stateHeader:
			n := copy(p.hdr[p.read:], chunk)
			chunk = chunk[n:]
			if p.read += n; p.read == frame.HeaderLen {
				p.crc = frame.Update(p.crc, p.hdr[:])
				p.header = frame.ParseHeader(p.hdr[:])
				p.startPayload()
			}
		case stateBody:
			n := copy(p.small[p.read:p.header.Size], chunk)
			p.crc = frame.Update(p.crc, chunk[:n])
			chunk = chunk[n:]
			if p.read += n; p.read == int(p.header.Size) {
				p.startTrailer()
			}
		case statePacket:
			chunk = p.fillPacket(chunk)
		case stateTrailer:
			n := copy(p.trailer[p.read:], chunk)
			chunk = chunk[n:]
			if p.read += n; p.read == frame.TrailerLen {
				p.finish(h)
			}
		}
	}
}

func (p *Parser) matchIntron(b byte) {
	for p.matched > 0 && b != p.intron[p.matched] {
		p.matched = p.fail[p.matched-1]
	}
	if b == p.intron[p.matched] {
		p.matched++
	}
	if p.matched == frame.IntronLen {
		p.matched = 0
		p.crc = frame.Update(0, p.intron[:])
		p.state, p.read = stateHeader, 0
	}
}

func (p *Parser) startPayload() {
	p.read = 0
	if p.header.Type == frame.Packet {
		buf, err := p.alloc.Alloc(int(p.header.Size))
		if err != nil {
			glog.Warningf("packet buffer allocation failed (size %d): %v, dropping packet", p.header.Size, err)
			p.stats.allocErrors.Add(1)
			p.resync()
			return
		}
		p.packet, p.seg, p.off = buf, 0, 0
		p.state = statePacket
	} else {
		if int(p.header.Size) > SmallBufferSize {
			glog.Errorf("message too large (MT: %v, size: %d), dropping", p.header.Type, p.header.Size)
			p.stats.oversized.Add(1)
			p.resync()
			return
		}
		p.state = stateBody
	}
	if p.header.Size == 0 {
		p.startTrailer()
	}
}

func (p *Parser) fillPacket(chunk []byte) []byte {
	segs := p.packet.Segments()
	for len(chunk) > 0 && p.read < int(p.header.Size) {
		seg := segs[p.seg]
		n := copy(seg[p.off:], chunk)
		p.crc = frame.Update(p.crc, chunk[:n])
		chunk = chunk[n:]
		p.read += n
		if p.off += n; p.off == len(seg) {
			p.seg, p.off = p.seg+1, 0
		}
	}
	if p.read == int(p.header.Size) {
		p.startTrailer()
	}
	return chunk
}

func (p *Parser) startTrailer() {
	p.state, p.read = stateTrailer, 0
}

func (p *Parser) finish(h Handler) {
	if !frame.Verify(p.crc, p.trailer) {
		glog.Errorf("checksum mismatch (MT: %v, ref: %08x, calc: %08x)",
			p.header.Type, p.trailer.Checksum(), p.crc)
		p.stats.checksumErrors.Add(1)
		p.resync()
		return
	}
	msg := p.message()
	// the packet buffer, if any, now belongs to msg.
	p.packet = nil
	p.resync()
	if msg == nil {
		p.stats.malformed.Add(1)
		return
	}
	p.stats.messages.Add(1)
	if glog.V(2) {
		glog.Infof("RCV %v vb=%d size=%d", p.header.Type, p.header.VariableByte, p.header.Size)
	}
	h.HandleMessage(msg)
}

func (p *Parser) message() Message {
	body := p.small[:0]
	if p.header.Type != frame.Packet {
		body = p.small[:p.header.Size]
	}
	switch p.header.Type {
	case frame.DeviceInfo:
		mac, err := frame.ParseMAC(body)
		if err != nil {
			glog.Errorf("bad device info: %v", err)
			return nil
		}
		return DeviceInfo{Version: p.header.VariableByte, MAC: mac}
	case frame.ScanAPCount:
		return APCount{Count: p.header.VariableByte}
	case frame.ScanAPInfo:
		info, err := frame.ParseAPInfo(body)
		if err != nil {
			glog.Errorf("bad AP info: %v", err)
			return nil
		}
		return APInfo{Index: p.header.VariableByte, Info: info}
	case frame.Packet:
		return Packet{Up: p.header.VariableByte != 0, Buffer: p.packet}
	default:
		return Invalid{Header: p.header}
	}
}

func (p *Parser) resync() {
	if p.packet != nil {
		p.packet.Release()
		p.packet = nil
	}
	p.state, p.read, p.matched = stateIntron, 0, 0
}
