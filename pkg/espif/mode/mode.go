// Package mode holds the operating mode state machine of the bridge.
package mode

import "fmt"

// Mode is the operating mode of the bridge.
type Mode int32

// Operating modes.
const (
	Uninitialized Mode = iota
	WaitInit
	NeedAP
	ConnectingAP
	Running
	Scanning
	WrongFirmware
	FlashErrorNotConnected
	FlashErrorOther
)

var modeNames = [...]string{
	Uninitialized:          "uninitialized",
	WaitInit:               "wait-init",
	NeedAP:                 "need-ap",
	ConnectingAP:           "connecting-ap",
	Running:                "running",
	Scanning:               "scanning",
	WrongFirmware:          "wrong-firmware",
	FlashErrorNotConnected: "flash-error-not-connected",
	FlashErrorOther:        "flash-error-other",
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int32(m))
}

// IsRunning reports the modes in which the co-processor accepts commands
// and packets.
func (m Mode) IsRunning() bool {
	switch m {
	case WaitInit, NeedAP, ConnectingAP, Running:
		return true
	case Uninitialized, Scanning, WrongFirmware, FlashErrorNotConnected, FlashErrorOther:
		return false
	}
	panic(fmt.Sprintf("mode: invalid mode %d", int32(m)))
}

// CanReceive reports the modes in which received data is processed.
func (m Mode) CanReceive() bool {
	switch m {
	case WaitInit, NeedAP, ConnectingAP, Running, Scanning, FlashErrorNotConnected:
		return true
	case Uninitialized, WrongFirmware, FlashErrorOther:
		return false
	}
	panic(fmt.Sprintf("mode: invalid mode %d", int32(m)))
}

// FwState is the firmware health derived from the mode.
type FwState int

// Firmware health states.
const (
	FwUnknown FwState = iota
	FwNoESP
	FwNoFirmware
	FwOK
	FwWrongVersion
	FwScanning
	FwFlashingErrorNotConnected
	FwFlashingErrorOther
)

var fwStateNames = [...]string{
	FwUnknown:                   "unknown",
	FwNoESP:                     "no-esp",
	FwNoFirmware:                "no-firmware",
	FwOK:                        "ok",
	FwWrongVersion:              "wrong-version",
	FwScanning:                  "scanning",
	FwFlashingErrorNotConnected: "flashing-error-not-connected",
	FwFlashingErrorOther:        "flashing-error-other",
}

func (s FwState) String() string {
	if s >= 0 && int(s) < len(fwStateNames) {
		return fwStateNames[s]
	}
	return fmt.Sprintf("FwState(%d)", int(s))
}

// LinkState is the link health derived from the mode.
type LinkState int

// Link health states.
const (
	LinkInit LinkState = iota
	LinkNoAP
	LinkSilent
	LinkUp
)

var linkStateNames = [...]string{
	LinkInit:   "init",
	LinkNoAP:   "no-ap",
	LinkSilent: "silent",
	LinkUp:     "up",
}

func (s LinkState) String() string {
	if s >= 0 && int(s) < len(linkStateNames) {
		return linkStateNames[s]
	}
	return fmt.Sprintf("LinkState(%d)", int(s))
}

// FlashResult is the outcome of flashing the co-processor firmware.
type FlashResult int

// Flash results.
const (
	FlashSuccess FlashResult = iota
	FlashNotConnected
	FlashFailure
)

// ParseFlashResult parses the names used by the shell.
func ParseFlashResult(s string) (FlashResult, error) {
	switch s {
	case "success", "ok":
		return FlashSuccess, nil
	case "not-connected":
		return FlashNotConnected, nil
	case "failure":
		return FlashFailure, nil
	}
	return FlashFailure, fmt.Errorf("unknown flash result %q", s)
}
