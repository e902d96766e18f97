package mqtt

import (
	"context"
	"io"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/comm"
)

// DefaultBacklog is the number of received packets buffered before
// incoming packets are dropped.
const DefaultBacklog = 32

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, DefaultBacklog),
		done:     make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForDevice sets topics using default convention for a bridged device:
// SubTopic = device/tx, frames to be sent to the co-processor;
// PubTopic = device/rx, frames received from the co-processor.
func (p *ReadWriter) ForDevice(device string) *ReadWriter {
	return p.WithTopics(device+"/tx", device+"/rx")
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.done:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer sub.Close()
	defer p.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return nil
	}
}

// Close implements io.Closer. Pending ReadPacket returns io.EOF.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *ReadWriter) handleMsg(topic string, payload []byte) {
	if len(payload) > comm.MaxPacketSize {
		glog.Warningf("%s: packet of %d bytes dropped", topic, len(payload))
		return
	}
	select {
	case p.packetCh <- payload:
	default:
		glog.Warningf("%s: backlog full, packet dropped", topic)
	}
}
