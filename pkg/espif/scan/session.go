// Package scan coordinates access point scans on the co-processor.
package scan

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/mode"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	"github.com/robotalks/espnic/pkg/espif/rx"
)

// Defaults for AP info requests.
const (
	DefaultTimeout  = 10 * time.Millisecond
	DefaultAttempts = 4
)

var (
	// ErrNotRunning indicates no scan is in progress.
	ErrNotRunning = errors.New("scan not running")
	// ErrAlreadyRunning indicates a scan is in progress.
	ErrAlreadyRunning = errors.New("scan already running")
	// ErrTimeout indicates the co-processor did not reply in time.
	ErrTimeout = errors.New("scan reply timeout")
	// ErrIndexOutOfRange indicates an AP index beyond the reported count.
	ErrIndexOutOfRange = errors.New("AP index out of range")
)

// Sender sends messages to the co-processor.
type Sender interface {
	Send(typ frame.MessageType, variableByte byte, payload pbuf.Ref) error
}

// Modes is the operating mode slot shared with the bridge.
type Modes interface {
	Get() mode.Mode
	Swap(m mode.Mode) mode.Mode
	CompareAndSwap(old, m mode.Mode) bool
}

// Session is the scan state of one bridge.
type Session struct {
	Timeout  time.Duration
	Attempts int

	sender Sender
	modes  Modes

	running   atomic.Bool
	savedMode atomic.Int32
	apCount   atomic.Uint32
	requested atomic.Int32 // AP index being requested, -1 for none

	getLock sync.Mutex
	replies chan frame.APInfo
}

// New creates a Session.
func New(sender Sender, modes Modes) *Session {
	s := &Session{
		Timeout:  DefaultTimeout,
		Attempts: DefaultAttempts,
		sender:   sender,
		modes:    modes,
		replies:  make(chan frame.APInfo, 1),
	}
	s.requested.Store(-1)
	return s
}

// IsRunning reports whether a scan is in progress.
func (s *Session) IsRunning() bool {
	return s.running.Load()
}

// Start asks the co-processor to scan and moves to Scanning mode.
func (s *Session) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		glog.Error("scan start while running scan")
		return ErrAlreadyRunning
	}
	if err := s.sender.Send(frame.ScanStart, 0, pbuf.Ref{}); err != nil {
		s.running.Store(false)
		return err
	}
	s.savedMode.Store(int32(s.modes.Swap(mode.Scanning)))
	s.apCount.Store(0)
	glog.Info("scan started")
	return nil
}

// Stop ends the scan and restores the mode it was started from, unless
// the mode changed meanwhile.
func (s *Session) Stop() error {
	if !s.running.Load() {
		glog.Errorf("unable to stop scan if none is running, mode: %v", s.modes.Get())
		return ErrNotRunning
	}
	if err := s.sender.Send(frame.ScanStop, 0, pbuf.Ref{}); err != nil {
		return err
	}
	s.running.Store(false)
	s.modes.CompareAndSwap(mode.Scanning, mode.Mode(s.savedMode.Load()))
	glog.Info("scan stopped")
	return nil
}

// Abort forgets a running scan without telling the co-processor, which is
// used when it is being reset. The mode is left alone.
func (s *Session) Abort() {
	if s.running.Swap(false) {
		glog.Info("scan aborted")
	}
}

// APCount returns the number of APs reported by the co-processor.
func (s *Session) APCount() int {
	return int(s.apCount.Load())
}

// SetAPCount records the number of APs found.
func (s *Session) SetAPCount(n byte) {
	s.apCount.Store(uint32(n))
}

// Deliver hands an AP info reply to the waiting request. Replies for
// another index, or arriving while a reply is already queued, are dropped.
// It never blocks.
func (s *Session) Deliver(msg rx.APInfo) bool {
	if int32(msg.Index) != s.requested.Load() {
		glog.V(2).Infof("drop AP info %d", msg.Index)
		return false
	}
	select {
	case s.replies <- msg.Info:
		return true
	default:
		return false
	}
}

// GetAPInfo requests the info of one AP found by the scan. A request is sent
// up to Attempts times, each waiting Timeout for the reply.
func (s *Session) GetAPInfo(index int) (frame.APInfo, error) {
	if index < 0 || index >= s.APCount() {
		return frame.APInfo{}, ErrIndexOutOfRange
	}
	s.getLock.Lock()
	defer s.getLock.Unlock()

	s.requested.Store(int32(index))
	defer s.requested.Store(-1)

	timer := time.NewTimer(s.Timeout)
	defer timer.Stop()

	lastErr := ErrTimeout
	for attempt := 0; attempt < s.Attempts; attempt++ {
		s.drain()
		if err := s.sender.Send(frame.ScanAPGet, byte(index), pbuf.Ref{}); err != nil {
			lastErr = err
			continue
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.Timeout)
		select {
		case info := <-s.replies:
			return info, nil
		case <-timer.C:
			lastErr = ErrTimeout
		}
	}
	glog.Warningf("AP info %d: %v", index, lastErr)
	return frame.APInfo{}, lastErr
}

func (s *Session) drain() {
	for {
		select {
		case <-s.replies:
		default:
			return
		}
	}
}
