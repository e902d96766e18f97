package espif

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/mode"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	"github.com/robotalks/espnic/pkg/espif/rx"
	"github.com/robotalks/espnic/pkg/espif/scan"
	"github.com/robotalks/espnic/pkg/espif/transport"
	"github.com/robotalks/espnic/pkg/espif/tx"
)

// NetIf is the IP stack side of the bridge.
type NetIf interface {
	// Input takes over a received frame. On error the bridge releases it.
	Input(buf *pbuf.Buffer) error
	LinkUp()
	LinkDown()
	SetHardwareAddr(mac net.HardwareAddr)
}

type netifBox struct {
	NetIf
}

// Stats are the traffic counters of a Bridge.
type Stats struct {
	BytesIn    uint64
	BytesOut   uint64
	PacketsIn  uint64
	PacketsOut uint64
	InputDrops uint64
	Ticks      uint64
	AliveTicks uint64
	Parser     rx.Stats
}

// Bridge is the network interface to one co-processor.
type Bridge struct {
	opts      Options
	transport transport.Transport

	modes  *mode.Controller
	tx     *tx.Channel
	scan   *scan.Session
	parser *rx.Parser

	netif     atomic.Pointer[netifBox]
	loop      atomic.Pointer[loopWaker]
	lineError atomic.Bool

	// pollLock guards the parser and the ring read position.
	pollLock sync.Mutex
	rxPos    int

	bytesIn    atomic.Uint64
	packetsIn  atomic.Uint64
	packetsOut atomic.Uint64
	inputDrops atomic.Uint64
	ticks      atomic.Uint64
	aliveTicks atomic.Uint64
}

var _ transport.Notifier = (*Bridge)(nil)

// New creates a Bridge in Uninitialized mode on top of the transport.
func New(t transport.Transport, opts Options) *Bridge {
	opts = opts.withDefaults()
	alloc := opts.Alloc
	if alloc == nil {
		alloc = pbuf.NewPool(DefaultPoolSegments, pbuf.DefaultSegmentSize)
	}
	b := &Bridge{
		opts:      opts,
		transport: t,
		modes:     mode.NewController(opts.InitCountdown),
		tx:        tx.New(t),
		parser:    rx.New(alloc),
	}
	b.modes.RequiredVersion = opts.RequiredVersion
	b.tx.Pacing = opts.Pacing
	b.tx.Alloc = alloc
	b.scan = scan.New(b.tx, b.modes)
	b.scan.Timeout = opts.ScanTimeout
	b.scan.Attempts = opts.ScanAttempts
	b.tx.Scan = b.scan
	return b
}

// Init binds the IP stack, starts receiving and waits for the co-processor
// to report itself. It may be called only once.
func (b *Bridge) Init(iface NetIf) error {
	if !b.netif.CompareAndSwap(nil, &netifBox{iface}) {
		return ErrAlreadyInitialized
	}
	b.tx.ResetIntron()
	if err := b.transport.StartRx(b); err != nil {
		b.netif.Store(nil)
		return err
	}
	b.modes.Set(mode.WaitInit)
	glog.Info("bridge initialized")
	return nil
}

func (b *Bridge) iface() NetIf {
	if box := b.netif.Load(); box != nil {
		return box.NetIf
	}
	return nil
}

// TxComplete implements transport.Notifier.
func (b *Bridge) TxComplete() {
	b.tx.Complete()
}

// LineError implements transport.Notifier. Recovery happens on next poll.
func (b *Bridge) LineError() {
	b.lineError.Store(true)
	b.wake()
}

// RxIdle implements transport.Notifier.
func (b *Bridge) RxIdle() {
	b.wake()
}

// Mode returns the current operating mode.
func (b *Bridge) Mode() mode.Mode {
	return b.modes.Get()
}

// LinkIsUp reports whether the co-processor is associated with an AP.
func (b *Bridge) LinkIsUp() bool {
	return b.modes.Link()
}

// NeedAP reports whether the co-processor waits for AP credentials.
func (b *Bridge) NeedAP() bool {
	return b.modes.Get() == mode.NeedAP
}

// FwState returns the firmware health.
func (b *Bridge) FwState() mode.FwState {
	return b.modes.FwState()
}

// LinkState returns the link health.
func (b *Bridge) LinkState() mode.LinkState {
	return b.modes.LinkState()
}

// Intron returns the active sync sequence.
func (b *Bridge) Intron() frame.Intron {
	return b.tx.Intron()
}

// Output sends a frame from the IP stack. An owned buffer is released in
// any case.
func (b *Bridge) Output(buf pbuf.Ref) error {
	if !b.modes.Get().IsRunning() {
		buf.Release()
		glog.Error("cannot send packet, not in running mode")
		return ErrNotRunning
	}
	if n := buf.Buffer().Len(); n > frame.MaxPayload {
		buf.Release()
		glog.Errorf("cannot send packet of %d bytes", n)
		return tx.ErrPayloadTooLarge
	}
	if err := b.tx.Send(frame.Packet, 1, buf); err != nil {
		glog.Errorf("send packet failed: %v", err)
		return err
	}
	b.packetsOut.Add(1)
	return nil
}

// JoinAP asks the co-processor to connect to an AP.
func (b *Bridge) JoinAP(ssid, pass string) error {
	if !b.modes.Get().IsRunning() {
		return ErrNotRunning
	}
	glog.Infof("joining AP %s:*(%d)", ssid, len(pass))
	if err := b.tx.SendClientConfig(ssid, pass); err != nil {
		return err
	}
	b.modes.Set(mode.ConnectingAP)
	return nil
}

// Reset hard resets the co-processor and waits for it to report again.
func (b *Bridge) Reset() error {
	if b.modes.Get() == mode.Uninitialized {
		glog.Error("can't reset co-processor")
		return ErrNotInitialized
	}
	glog.Info("reset co-processor")
	b.tx.ResetIntron()
	b.forceDown()
	b.scan.Abort()
	var err error
	if line := b.opts.ResetLine; line != nil {
		if err = line.Reset(); err != nil {
			glog.Warningf("reset line: %v", err)
		}
	}
	b.modes.Reset()
	b.pollLock.Lock()
	b.parser.Reset()
	b.skipReceived()
	b.pollLock.Unlock()
	return err
}

// ResetConnection forgets the AP connection.
func (b *Bridge) ResetConnection() {
	b.modes.Set(mode.NeedAP)
	b.processLinkChange(false)
}

// NotifyFlashResult sets the mode after the firmware was flashed.
func (b *Bridge) NotifyFlashResult(result mode.FlashResult) {
	b.modes.NotifyFlashResult(result)
}

// ScanStart starts an AP scan.
func (b *Bridge) ScanStart() error {
	return b.scan.Start()
}

// ScanStop stops the AP scan.
func (b *Bridge) ScanStop() error {
	return b.scan.Stop()
}

// ScanIsRunning reports whether an AP scan is running.
func (b *Bridge) ScanIsRunning() bool {
	return b.scan.IsRunning()
}

// ScanAPCount returns the number of APs found.
func (b *Bridge) ScanAPCount() int {
	return b.scan.APCount()
}

// ScanAPInfo queries one AP found by the scan.
func (b *Bridge) ScanAPInfo(index int) (frame.APInfo, error) {
	return b.scan.GetAPInfo(index)
}

// Tick runs the health check and reports whether the co-processor was
// alive during the last period.
func (b *Bridge) Tick() bool {
	alive := b.modes.Tick(func() error {
		return b.tx.Send(frame.Packet, 1, pbuf.Ref{})
	})
	b.ticks.Add(1)
	if alive {
		b.aliveTicks.Add(1)
	}
	return alive
}

// Stats returns the traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		BytesIn:    b.bytesIn.Load(),
		BytesOut:   b.tx.BytesSent(),
		PacketsIn:  b.packetsIn.Load(),
		PacketsOut: b.packetsOut.Load(),
		InputDrops: b.inputDrops.Load(),
		Ticks:      b.ticks.Load(),
		AliveTicks: b.aliveTicks.Load(),
		Parser:     b.parser.Stats(),
	}
}

func (b *Bridge) forceDown() {
	glog.Info("force down")
	b.processLinkChange(false)
}

func (b *Bridge) processLinkChange(up bool) {
	iface := b.iface()
	if up {
		if !b.scan.IsRunning() {
			b.modes.Set(mode.Running)
		}
		if b.modes.SetLink(true) && iface != nil {
			iface.LinkUp()
		}
	} else if b.modes.SetLink(false) && iface != nil {
		iface.LinkDown()
	}
}

// handleMessage is called by the parser within Poll.
func (b *Bridge) handleMessage(msg rx.Message) {
	b.modes.MarkIntron()
	switch m := msg.(type) {
	case rx.DeviceInfo:
		glog.Infof("MAC: %v", m.MAC)
		if iface := b.iface(); iface != nil {
			iface.SetHardwareAddr(m.MAC)
		}
		b.modes.OnDeviceInfo(m.Version)
	case rx.APCount:
		b.scan.SetAPCount(m.Count)
	case rx.APInfo:
		b.scan.Deliver(m)
	case rx.Packet:
		b.handlePacket(m)
	case rx.Invalid:
		glog.Errorf("message invalid (MT: %v)", m.Header.Type)
		if b.opts.PanicOnInvalid {
			panic("espif: invalid message from co-processor")
		}
	default:
		panic("espif: unhandled message")
	}
}

func (b *Bridge) handlePacket(m rx.Packet) {
	b.processLinkChange(m.Up)
	b.modes.MarkPacket()
	if m.Buffer.Len() == 0 {
		m.Buffer.Release()
		return
	}
	iface := b.iface()
	if iface == nil {
		m.Buffer.Release()
		return
	}
	if err := iface.Input(m.Buffer); err != nil {
		glog.Warningf("input failed, dropping packet: %v", err)
		m.Buffer.Release()
		b.inputDrops.Add(1)
		return
	}
	b.packetsIn.Add(1)
}
