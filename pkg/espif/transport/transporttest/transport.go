// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"bytes"
	"errors"
	"sync"

	"github.com/robotalks/espnic/pkg/espif/transport"
)

// ErrTransmit is returned by Transmit when failure is injected.
var ErrTransmit = errors.New("transmit failure")

// Transport emulates a UART with a receive DMA ring. Transfers complete
// asynchronously.
type Transport struct {
	// OnTransmit, if set, is called with every issued transfer before it
	// completes. It can be used to answer requests.
	OnTransmit func(p []byte)

	lock      sync.Mutex
	ring      []byte
	wpos      int
	notifier  transport.Notifier
	starts    int
	failNext  int
	startErr  error
	transfers [][]byte
	resets    int
}

// New creates a Transport with a receive ring of size bytes.
func New(size int) *Transport {
	return &Transport{ring: make([]byte, size)}
}

// Transmit implements transport.Transport.
func (t *Transport) Transmit(p []byte) error {
	t.lock.Lock()
	if t.failNext > 0 {
		t.failNext--
		t.lock.Unlock()
		return ErrTransmit
	}
	t.transfers = append(t.transfers, append([]byte{}, p...))
	n, hook := t.notifier, t.OnTransmit
	t.lock.Unlock()
	go func() {
		if hook != nil {
			hook(p)
		}
		if n != nil {
			n.TxComplete()
		}
	}()
	return nil
}

// RxBuffer implements transport.Transport.
func (t *Transport) RxBuffer() []byte {
	return t.ring
}

// RxRemaining implements transport.Transport.
func (t *Transport) RxRemaining() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return len(t.ring) - t.wpos
}

// StartRx implements transport.Transport.
func (t *Transport) StartRx(n transport.Notifier) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if err := t.startErr; err != nil {
		t.startErr = nil
		return err
	}
	t.notifier = n
	t.wpos = 0
	t.starts++
	return nil
}

// Reset implements transport.ResetLine.
func (t *Transport) Reset() error {
	t.lock.Lock()
	t.resets++
	t.lock.Unlock()
	return nil
}

// Inject writes received bytes into the ring, wrapping around at its end,
// and reports the line idle.
func (t *Transport) Inject(p []byte) {
	t.lock.Lock()
	for len(p) > 0 {
		n := copy(t.ring[t.wpos:], p)
		p = p[n:]
		t.wpos = (t.wpos + n) % len(t.ring)
	}
	n := t.notifier
	t.lock.Unlock()
	if n != nil {
		n.RxIdle()
	}
}

// InjectLineError reports a receive line error.
func (t *Transport) InjectLineError() {
	t.lock.Lock()
	n := t.notifier
	t.lock.Unlock()
	if n != nil {
		n.LineError()
	}
}

// FailTransmits makes the next count transfers fail.
func (t *Transport) FailTransmits(count int) {
	t.lock.Lock()
	t.failNext = count
	t.lock.Unlock()
}

// FailStartRx makes the next StartRx fail with err.
func (t *Transport) FailStartRx(err error) {
	t.lock.Lock()
	t.startErr = err
	t.lock.Unlock()
}

// Starts returns the number of successful StartRx calls.
func (t *Transport) Starts() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.starts
}

// Resets returns the number of hardware resets.
func (t *Transport) Resets() int {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.resets
}

// Transfers returns a copy of all issued transfers.
func (t *Transport) Transfers() [][]byte {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([][]byte{}, t.transfers...)
}

// Wire returns the concatenation of all issued transfers.
func (t *Transport) Wire() []byte {
	return bytes.Join(t.Transfers(), nil)
}

// ClearTransfers forgets the recorded transfers.
func (t *Transport) ClearTransfers() {
	t.lock.Lock()
	t.transfers = nil
	t.lock.Unlock()
}
