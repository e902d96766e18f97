package mode

import (
	"errors"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/frame"
)

// DefaultInitCountdown is the number of ticks the co-processor gets to
// report itself before it is considered to have no firmware (10 seconds
// with a 500ms tick).
const DefaultInitCountdown = 20

var (
	// ErrWrongFirmware indicates the co-processor reported another protocol version.
	ErrWrongFirmware = errors.New("firmware version mismatch")
	// ErrDuplicateDeviceInfo indicates a device info received outside WaitInit.
	ErrDuplicateDeviceInfo = errors.New("duplicate device info")
)

// Controller owns the operating mode and the liveness flags. All state is
// atomic, so it can be read and written from any goroutine.
type Controller struct {
	RequiredVersion byte

	mode       atomic.Int32
	associated atomic.Bool
	detected   atomic.Bool
	everOK     atomic.Bool
	seenIntron atomic.Bool
	seenPacket atomic.Bool
	countdown  atomic.Int32
}

// NewController creates a Controller in Uninitialized mode.
func NewController(initCountdown int) *Controller {
	c := &Controller{RequiredVersion: frame.RequiredProtocolVersion}
	c.countdown.Store(int32(initCountdown))
	return c
}

// Get returns the current mode.
func (c *Controller) Get() Mode {
	return Mode(c.mode.Load())
}

// Set forces the mode.
func (c *Controller) Set(m Mode) {
	if old := Mode(c.mode.Swap(int32(m))); old != m {
		glog.V(2).Infof("mode %v -> %v", old, m)
	}
}

// Swap sets the mode and returns the previous one.
func (c *Controller) Swap(m Mode) Mode {
	return Mode(c.mode.Swap(int32(m)))
}

// CompareAndSwap changes the mode only if it is still old.
func (c *Controller) CompareAndSwap(old, m Mode) bool {
	return c.mode.CompareAndSwap(int32(old), int32(m))
}

// OnDeviceInfo applies the first device info of a boot cycle: WaitInit
// moves to NeedAP, or to WrongFirmware on a version mismatch. A device info
// in any other mode is reported as a duplicate and changes nothing.
func (c *Controller) OnDeviceInfo(version byte) error {
	if !c.CompareAndSwap(WaitInit, NeedAP) {
		// the co-processor is known to send its device info twice.
		glog.Errorf("device info in mode %v ignored", c.Get())
		return ErrDuplicateDeviceInfo
	}
	if version != c.RequiredVersion {
		glog.Warningf("firmware version mismatch: %d != %d", version, c.RequiredVersion)
		c.Set(WrongFirmware)
		return ErrWrongFirmware
	}
	c.everOK.Store(true)
	glog.Info("waiting for AP")
	return nil
}

// NotifyFlashResult sets the mode after the firmware was flashed.
func (c *Controller) NotifyFlashResult(result FlashResult) {
	switch result {
	case FlashSuccess:
		c.Set(WaitInit)
	case FlashNotConnected:
		c.Set(FlashErrorNotConnected)
	default:
		c.Set(FlashErrorOther)
	}
}

// Reset forces WaitInit and clears the transient flags.
func (c *Controller) Reset() {
	c.seenIntron.Store(false)
	c.seenPacket.Store(false)
	c.detected.Store(false)
	c.Set(WaitInit)
}

// MarkDetected records that bytes were received from the co-processor.
func (c *Controller) MarkDetected() {
	c.detected.Store(true)
}

// MarkIntron records a valid message since the last tick.
func (c *Controller) MarkIntron() {
	c.seenIntron.Store(true)
}

// MarkPacket records a received packet since the last tick.
func (c *Controller) MarkPacket() {
	c.seenPacket.Store(true)
}

// SetLink records the link state and reports whether it changed.
func (c *Controller) SetLink(up bool) bool {
	return c.associated.Swap(up) != up
}

// Link reports whether the co-processor is associated with an AP.
func (c *Controller) Link() bool {
	return c.associated.Load()
}

// Tick runs one health check period. It counts down the startup grace
// period, and while the link is up, pings the co-processor through ping if
// no packet arrived during the period. It returns whether a valid message
// was seen during the period.
func (c *Controller) Tick(ping func() error) bool {
	// only the tick goroutine writes the countdown.
	if n := c.countdown.Load(); n > 0 {
		c.countdown.Store(n - 1)
	}
	if !c.Link() {
		return false
	}
	alive := c.seenIntron.Swap(false)
	if !c.seenPacket.Swap(false) && c.Get().IsRunning() {
		glog.V(2).Info("ping co-processor")
		if err := ping(); err != nil {
			glog.Warningf("ping failed: %v", err)
		}
	}
	return alive
}

// FwState derives the firmware health. Once the co-processor was seen
// working, it is never reported missing again.
func (c *Controller) FwState() FwState {
	seenOK := c.everOK.Load()
	switch m := c.Get(); m {
	case Uninitialized:
		if seenOK {
			return FwOK
		}
		return FwUnknown
	case FlashErrorNotConnected:
		return FwFlashingErrorNotConnected
	case FlashErrorOther:
		return FwFlashingErrorOther
	case WaitInit:
		switch {
		case seenOK:
			return FwOK
		case !c.detected.Load():
			return FwNoESP
		case c.countdown.Load() > 0:
			return FwUnknown
		default:
			return FwNoFirmware
		}
	case NeedAP, ConnectingAP, Running:
		return FwOK
	case WrongFirmware:
		return FwWrongVersion
	case Scanning:
		return FwScanning
	default:
		panic("mode: invalid mode " + m.String())
	}
}

// LinkState derives the link health.
func (c *Controller) LinkState() LinkState {
	switch m := c.Get(); m {
	case WaitInit, WrongFirmware, Uninitialized, FlashErrorNotConnected, FlashErrorOther, Scanning:
		return LinkInit
	case NeedAP, ConnectingAP:
		return LinkNoAP
	case Running:
		switch {
		case !c.Link():
			return LinkNoAP
		case c.seenIntron.Load():
			return LinkUp
		default:
			return LinkSilent
		}
	default:
		panic("mode: invalid mode " + m.String())
	}
}
