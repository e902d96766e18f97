// Package tx implements the single-flight transmit path to the co-processor.
package tx

import (
	"crypto/rand"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
)

// Transmitter starts DMA transfers on the UART. Transmit returns once the
// transfer is issued. Its completion is reported through Channel.Complete,
// unless Transmit fails, in which case no completion is reported.
// The data must stay untouched until completion.
type Transmitter interface {
	Transmit(p []byte) error
}

// ScanState tells whether an AP scan is in progress.
type ScanState interface {
	IsRunning() bool
}

// DefaultPacing is the delay before each payload segment, which gives the
// co-processor time to hand a large enough buffer to its UART driver.
const DefaultPacing = time.Millisecond

// Channel serializes messages onto the transmitter. A whole message
// (prelude, payload segments, trailer) is sent under one lock and every
// part is a single DMA transfer awaited until completion.
type Channel struct {
	Pacing time.Duration
	Rand   io.Reader
	Alloc  pbuf.Allocator
	Scan   ScanState

	port   Transmitter
	lock   sync.Mutex
	intron atomic.Pointer[frame.Intron]
	slot   slot
	sleep  func(time.Duration)

	bytesSent atomic.Uint64
}

// New creates a Channel on top of the transmitter.
func New(port Transmitter) *Channel {
	c := &Channel{
		Pacing: DefaultPacing,
		Rand:   rand.Reader,
		port:   port,
		sleep:  time.Sleep,
	}
	intron := frame.DefaultIntron
	c.intron.Store(&intron)
	return c
}

// Intron returns the sync sequence used for outgoing messages.
func (c *Channel) Intron() frame.Intron {
	return *c.intron.Load()
}

// ResetIntron restores the default sync sequence, as the co-processor does
// after a reset.
func (c *Channel) ResetIntron() {
	glog.V(2).Info("reset intron")
	intron := frame.DefaultIntron
	c.lock.Lock()
	c.intron.Store(&intron)
	c.lock.Unlock()
}

// BytesSent returns the number of bytes transmitted so far.
func (c *Channel) BytesSent() uint64 {
	return c.bytesSent.Load()
}

// Complete is called by the transport when a DMA transfer finishes.
// It never blocks and may be called from any goroutine.
func (c *Channel) Complete() {
	c.slot.complete()
}

// Send transmits one message. An owned payload is released when Send
// returns. Send stops at the first transport error.
func (c *Channel) Send(typ frame.MessageType, variableByte byte, payload pbuf.Ref) error {
	defer payload.Release()
	segs := payload.Buffer().Segments()
	if size := payload.Buffer().Len(); size > frame.MaxPayload {
		glog.Errorf("drop %v: payload %d bytes too large", typ, size)
		return ErrPayloadTooLarge
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	enc := frame.Encode(c.Intron(), typ, variableByte, segs)
	if glog.V(2) {
		glog.Infof("SND %v vb=%d size=%d", typ, variableByte, payload.Buffer().Len())
	}
	if err := c.transfer(PartPrelude, enc.Prelude[:]); err != nil {
		glog.Errorf("transmit %v failed: %v", typ, err)
		return err
	}
	for _, seg := range segs {
		if len(seg) == 0 {
			continue
		}
		if c.Pacing > 0 {
			c.sleep(c.Pacing)
		}
		if err := c.transfer(PartPayload, seg); err != nil {
			glog.Errorf("transmit %v failed: %v", typ, err)
			return err
		}
	}
	if err := c.transfer(PartTrailer, enc.Trailer[:]); err != nil {
		glog.Errorf("transmit %v failed: %v", typ, err)
		return err
	}
	return nil
}

// transfer issues one DMA transfer and waits for its completion.
// It must be called with lock held.
func (c *Channel) transfer(part Part, p []byte) error {
	token := c.slot.claim()
	if err := c.port.Transmit(p); err != nil {
		c.slot.withdraw(token)
		return &TransferError{Part: part, Err: err}
	}
	<-token.Done()
	c.bytesSent.Add(uint64(len(p)))
	return nil
}

// SendClientConfig asks the co-processor to join an AP. The message carries
// a freshly randomized intron which becomes the active sync sequence only
// once the message has been sent.
func (c *Channel) SendClientConfig(ssid, pass string) error {
	if c.Scan != nil && c.Scan.IsRunning() {
		glog.Error("client config while running scan")
		return ErrScanRunning
	}
	if len(ssid) > 0xff || len(pass) > 0xff {
		return ErrTooLong
	}
	intron, err := c.nextIntron()
	if err != nil {
		return err
	}
	payload := make([]byte, frame.ClientConfigLen(ssid, pass))
	frame.PutClientConfig(payload, intron, ssid, pass)
	buf := pbuf.New(payload)
	if c.Alloc != nil {
		if buf, err = pbuf.FromBytes(c.Alloc, payload); err != nil {
			glog.Errorf("low mem for client config: %v", err)
			return err
		}
	}

	if err = c.Send(frame.ClientConfig, 0, pbuf.Owned(buf)); err != nil {
		glog.Errorf("client config failed: %v", err)
		return err
	}
	c.lock.Lock()
	c.intron.Store(&intron)
	c.lock.Unlock()
	glog.Info("client config complete, have new intron")
	return nil
}

func (c *Channel) nextIntron() (frame.Intron, error) {
	current := c.Intron()
	var tail [frame.IntronLen - frame.MarkerLen]byte
	for {
		if _, err := io.ReadFull(c.Rand, tail[:]); err != nil {
			return current, err
		}
		if next := current.WithTail(tail); next != current {
			return next, nil
		}
	}
}
