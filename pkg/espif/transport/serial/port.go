// Package serial implements the bridge transport on a host serial port.
//
// A reader goroutine copies received bytes into the ring, emulating a
// free-running receive DMA, and a writer goroutine completes transfers.
// The reset line of the co-processor is expected on RTS.
package serial

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	goserial "go.bug.st/serial"

	"github.com/robotalks/espnic/pkg/espif/transport"
)

// Defaults.
const (
	DefaultBaudRate     = 1000000
	DefaultRxBufferSize = 2048
	DefaultResetSettle  = 100 * time.Millisecond

	readChunkSize = 256
	readTimeout   = 50 * time.Millisecond
)

var (
	// ErrBusy indicates a transfer is still in flight.
	ErrBusy = errors.New("transfer in flight")
	// ErrClosed indicates the port was closed.
	ErrClosed = errors.New("port closed")
)

var _ transport.Transport = (*Port)(nil)
var _ transport.ResetLine = (*Port)(nil)

// Config holds the serial port settings.
type Config struct {
	Port         string
	BaudRate     int
	RxBufferSize int
	ResetSettle  time.Duration
}

type notifierBox struct {
	transport.Notifier
}

// Port is a transport.Transport on a serial port.
type Port struct {
	cfg  Config
	port goserial.Port

	ringLock  sync.Mutex
	ring      []byte
	wpos      int
	remaining atomic.Int32

	notifier atomic.Pointer[notifierBox]
	txLock   sync.Mutex
	txCh     chan []byte
	closeCh  chan struct{}
	readOnce sync.Once
	wg       sync.WaitGroup
}

// Open opens the serial port.
func Open(cfg Config) (*Port, error) {
	if cfg.Port == "" {
		return nil, errors.New("serial port is required")
	}
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.RxBufferSize <= 0 {
		cfg.RxBufferSize = DefaultRxBufferSize
	}
	if cfg.ResetSettle == 0 {
		cfg.ResetSettle = DefaultResetSettle
	}
	port, err := goserial.Open(cfg.Port, &goserial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	p := &Port{
		cfg:     cfg,
		port:    port,
		ring:    make([]byte, cfg.RxBufferSize),
		txCh:    make(chan []byte, 1),
		closeCh: make(chan struct{}),
	}
	p.remaining.Store(int32(len(p.ring)))
	p.wg.Add(1)
	go p.writeLoop()
	glog.Infof("serial port %s opened at %d baud", cfg.Port, cfg.BaudRate)
	return p, nil
}

// Close stops the goroutines and closes the port. A transfer still queued
// is completed without being written.
func (p *Port) Close() error {
	p.txLock.Lock()
	close(p.closeCh)
	p.txLock.Unlock()
	err := p.port.Close()
	p.wg.Wait()
	return err
}

// Transmit implements transport.Transport.
func (p *Port) Transmit(data []byte) error {
	p.txLock.Lock()
	defer p.txLock.Unlock()
	select {
	case <-p.closeCh:
		return ErrClosed
	default:
	}
	select {
	case p.txCh <- data:
		return nil
	default:
		return ErrBusy
	}
}

// RxBuffer implements transport.Transport.
func (p *Port) RxBuffer() []byte {
	return p.ring
}

// RxRemaining implements transport.Transport.
func (p *Port) RxRemaining() int {
	return int(p.remaining.Load())
}

// StartRx implements transport.Transport.
func (p *Port) StartRx(n transport.Notifier) error {
	p.notifier.Store(&notifierBox{n})
	if err := p.port.ResetInputBuffer(); err != nil {
		return err
	}
	p.ringLock.Lock()
	p.wpos = 0
	p.remaining.Store(int32(len(p.ring)))
	p.ringLock.Unlock()
	p.readOnce.Do(func() {
		p.wg.Add(1)
		go p.readLoop()
	})
	return nil
}

// Reset implements transport.ResetLine by pulsing RTS.
func (p *Port) Reset() error {
	if err := p.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(p.cfg.ResetSettle)
	return p.port.SetRTS(false)
}

func (p *Port) notify(fn func(transport.Notifier)) {
	if box := p.notifier.Load(); box != nil {
		fn(box.Notifier)
	}
}

func (p *Port) writeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closeCh:
			p.drainTx()
			return
		case data := <-p.txCh:
			if _, err := p.port.Write(data); err != nil {
				glog.Warningf("serial write: %v", err)
			}
			// the sender waits for completion even if the write failed.
			p.notify(transport.Notifier.TxComplete)
		}
	}
}

func (p *Port) drainTx() {
	for {
		select {
		case <-p.txCh:
			p.notify(transport.Notifier.TxComplete)
		default:
			return
		}
	}
}

func (p *Port) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, readChunkSize)
	for {
		n, err := p.port.Read(buf)
		select {
		case <-p.closeCh:
			return
		default:
		}
		if err != nil {
			glog.Warningf("serial read: %v", err)
			p.notify(transport.Notifier.LineError)
			time.Sleep(readTimeout)
			continue
		}
		if n == 0 {
			continue
		}
		p.store(buf[:n])
		p.notify(transport.Notifier.RxIdle)
	}
}

func (p *Port) store(data []byte) {
	p.ringLock.Lock()
	defer p.ringLock.Unlock()
	for len(data) > 0 {
		n := copy(p.ring[p.wpos:], data)
		data = data[n:]
		p.wpos = (p.wpos + n) % len(p.ring)
	}
	p.remaining.Store(int32(len(p.ring) - p.wpos))
}

// List returns the names of the serial ports on the host.
func List() ([]string, error) {
	return goserial.GetPortsList()
}
