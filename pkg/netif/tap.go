// Package netif exposes the bridge as a network interface whose frames are
// exchanged with a packet channel, e.g. a TAP helper on stdio, a websocket
// peer or an MQTT topic pair.
package netif

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/comm"
	"github.com/robotalks/espnic/pkg/espif"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	fx "github.com/robotalks/espnic/pkg/framework"
)

// DefaultQueueSize is the number of received frames queued for the packet
// channel.
const DefaultQueueSize = 16

var (
	// ErrQueueFull indicates the packet channel can't keep up.
	ErrQueueFull = errors.New("input queue full")
	// ErrLinkDown indicates a frame arrived while the link is down.
	ErrLinkDown = errors.New("link is down")
)

// Output is the sending side of the bridge.
type Output interface {
	Output(buf pbuf.Ref) error
}

// Tap implements espif.NetIf on top of a PacketReadWriter.
type Tap struct {
	Conn   comm.PacketReadWriter
	Output Output
	Alloc  pbuf.Allocator

	inCh   chan *pbuf.Buffer
	linkUp atomic.Bool

	addrLock sync.RWMutex
	hwAddr   net.HardwareAddr

	framesIn   atomic.Uint64
	framesOut  atomic.Uint64
	writeFails atomic.Uint64
	outDrops   atomic.Uint64
}

var _ espif.NetIf = (*Tap)(nil)

// NewTap creates a Tap.
func NewTap(conn comm.PacketReadWriter, out Output, alloc pbuf.Allocator) *Tap {
	return NewTapWithQueue(conn, out, alloc, DefaultQueueSize)
}

// NewTapWithQueue creates a Tap with specified input queue size.
func NewTapWithQueue(conn comm.PacketReadWriter, out Output, alloc pbuf.Allocator, queueSize int) *Tap {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Tap{
		Conn:   conn,
		Output: out,
		Alloc:  alloc,
		inCh:   make(chan *pbuf.Buffer, queueSize),
	}
}

// Input implements espif.NetIf.
func (t *Tap) Input(buf *pbuf.Buffer) error {
	if !t.linkUp.Load() {
		return ErrLinkDown
	}
	select {
	case t.inCh <- buf:
		return nil
	default:
		return ErrQueueFull
	}
}

// LinkUp implements espif.NetIf.
func (t *Tap) LinkUp() {
	if !t.linkUp.Swap(true) {
		glog.Info("link up")
	}
}

// LinkDown implements espif.NetIf.
func (t *Tap) LinkDown() {
	if t.linkUp.Swap(false) {
		glog.Info("link down")
	}
}

// SetHardwareAddr implements espif.NetIf.
func (t *Tap) SetHardwareAddr(mac net.HardwareAddr) {
	t.addrLock.Lock()
	t.hwAddr = append(net.HardwareAddr(nil), mac...)
	t.addrLock.Unlock()
	glog.Infof("hardware address %s", mac)
}

// IsUp returns the link state.
func (t *Tap) IsUp() bool {
	return t.linkUp.Load()
}

// HardwareAddr returns the MAC reported by the co-processor.
func (t *Tap) HardwareAddr() net.HardwareAddr {
	t.addrLock.RLock()
	defer t.addrLock.RUnlock()
	return t.hwAddr
}

// Counters returns frames delivered to and taken from the packet channel,
// frames failed to write and outgoing frames dropped.
func (t *Tap) Counters() (in, out, writeFails, outDrops uint64) {
	return t.framesIn.Load(), t.framesOut.Load(), t.writeFails.Load(), t.outDrops.Load()
}

// Run implements Runnable. It pumps frames in both directions until the
// context is cancelled or the packet channel fails.
func (t *Tap) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- t.readLoop()
		cancel()
	}()
	t.writeLoop(ctx)
	t.drain()
	if closer, ok := t.Conn.(io.Closer); ok {
		closer.Close()
	}
	select {
	case err := <-errCh:
		if err == io.EOF {
			err = nil
		}
		if err != nil {
			return err
		}
	default:
	}
	return ctx.Err()
}

// AddToLoop implements framework.LoopAdder.
func (t *Tap) AddToLoop(loop *fx.Loop) {
	if adder, ok := t.Conn.(fx.LoopAdder); ok {
		loop.Add(adder)
	} else if runnable, ok := t.Conn.(fx.Runnable); ok {
		loop.AddRunnable(runnable)
	}
	loop.AddRunnable(t)
}

func (t *Tap) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-t.inCh:
			err := t.Conn.WritePacket(buf.Bytes())
			buf.Release()
			if err != nil {
				t.writeFails.Add(1)
				glog.Warningf("write frame error: %v", err)
				continue
			}
			t.framesIn.Add(1)
		}
	}
}

func (t *Tap) readLoop() error {
	for {
		pkt, err := t.Conn.ReadPacket()
		if err != nil {
			return err
		}
		if len(pkt) == 0 {
			continue
		}
		buf, err := pbuf.FromBytes(t.Alloc, pkt)
		if err != nil {
			t.outDrops.Add(1)
			glog.V(2).Infof("drop outgoing frame: %v", err)
			continue
		}
		if err := t.Output.Output(pbuf.Owned(buf)); err != nil {
			t.outDrops.Add(1)
			glog.V(2).Infof("drop outgoing frame: %v", err)
			continue
		}
		t.framesOut.Add(1)
	}
}

func (t *Tap) drain() {
	for {
		select {
		case buf := <-t.inCh:
			buf.Release()
		default:
			return
		}
	}
}
