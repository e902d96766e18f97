package espif

import (
	"time"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/mode"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	"github.com/robotalks/espnic/pkg/espif/scan"
	"github.com/robotalks/espnic/pkg/espif/transport"
	"github.com/robotalks/espnic/pkg/espif/tx"
)

// Defaults.
const (
	DefaultTickInterval = 500 * time.Millisecond
	DefaultPoolSegments = 64
)

// Options tunes a Bridge. Zero fields take the values of DefaultOptions.
type Options struct {
	// RequiredVersion is the protocol version the firmware must report.
	RequiredVersion byte
	// ScanTimeout is how long to wait for each AP info reply.
	ScanTimeout time.Duration
	// ScanAttempts bounds the AP info requests per query.
	ScanAttempts int
	// Pacing is the delay before each payload segment sent. Zero uses
	// tx.DefaultPacing, a negative value disables pacing.
	Pacing time.Duration
	// InitCountdown is the number of ticks before a silent co-processor is
	// reported as missing firmware. Zero uses mode.DefaultInitCountdown, a
	// negative value disables the grace period.
	InitCountdown int
	// TickInterval is the health check period when run in a loop.
	TickInterval time.Duration
	// PanicOnInvalid panics on a message of unexpected type. Debug only.
	PanicOnInvalid bool

	// Alloc provides packet buffers. A pool is created if nil.
	Alloc pbuf.Allocator
	// ResetLine resets the co-processor. Without it Reset only resets the
	// host side.
	ResetLine transport.ResetLine
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		RequiredVersion: frame.RequiredProtocolVersion,
		ScanTimeout:     scan.DefaultTimeout,
		ScanAttempts:    scan.DefaultAttempts,
		Pacing:          tx.DefaultPacing,
		InitCountdown:   mode.DefaultInitCountdown,
		TickInterval:    DefaultTickInterval,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RequiredVersion == 0 {
		o.RequiredVersion = def.RequiredVersion
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = def.ScanTimeout
	}
	if o.ScanAttempts <= 0 {
		o.ScanAttempts = def.ScanAttempts
	}
	switch {
	case o.InitCountdown == 0:
		o.InitCountdown = def.InitCountdown
	case o.InitCountdown < 0:
		o.InitCountdown = 0
	}
	switch {
	case o.Pacing == 0:
		o.Pacing = def.Pacing
	case o.Pacing < 0:
		o.Pacing = 0
	}
	if o.TickInterval <= 0 {
		o.TickInterval = def.TickInterval
	}
	return o
}
