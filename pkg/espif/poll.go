package espif

import (
	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/rx"
)

// Poll drains the bytes received since the last call into the parser. It
// also restarts reception after a line error, discarding the unread bytes.
// Poll must not be called concurrently with itself.
func (b *Bridge) Poll() {
	if !b.modes.Get().CanReceive() || b.iface() == nil {
		return
	}

	b.pollLock.Lock()
	defer b.pollLock.Unlock()

	if b.lineError.CompareAndSwap(true, false) {
		glog.Warning("recovering from UART error")
		if err := b.transport.StartRx(b); err != nil {
			glog.Warningf("restart receive failed: %v", err)
			b.lineError.Store(true)
			return
		}
		b.rxPos = 0
		b.parser.Reset()
		return
	}

	ring := b.transport.RxBuffer()
	pos := len(ring) - b.transport.RxRemaining()
	if pos == b.rxPos {
		return
	}
	if pos > b.rxPos {
		b.input(ring[b.rxPos:pos])
	} else {
		b.input(ring[b.rxPos:])
		if pos > 0 {
			b.input(ring[:pos])
		}
	}
	b.rxPos = pos
	if b.rxPos == len(ring) {
		b.rxPos = 0
	}
}

// input must be called with pollLock held.
func (b *Bridge) input(p []byte) {
	b.modes.MarkDetected()
	b.bytesIn.Add(uint64(len(p)))
	b.parser.SetIntron(b.tx.Intron())
	b.parser.Feed(p, rx.HandleMessageFunc(b.handleMessage))
}

// skipReceived drops the bytes received so far. It must be called with
// pollLock held.
func (b *Bridge) skipReceived() {
	ring := b.transport.RxBuffer()
	b.rxPos = (len(ring) - b.transport.RxRemaining()) % len(ring)
}
