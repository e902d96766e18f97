package tx

import (
	"errors"
	"fmt"
)

var (
	// ErrScanRunning rejects a client config while an AP scan is running.
	ErrScanRunning = errors.New("scan is running")
	// ErrTooLong indicates the SSID or password exceeds 255 bytes.
	ErrTooLong = errors.New("ssid or password too long")
	// ErrPayloadTooLarge indicates a payload beyond frame.MaxPayload.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Part names the part of a message being transferred.
type Part string

// Message parts, each transferred as its own DMA transfer.
const (
	PartPrelude Part = "prelude"
	PartPayload Part = "payload"
	PartTrailer Part = "trailer"
)

// TransferError wraps a transport error raised while sending a message.
type TransferError struct {
	Part Part
	Err  error
}

// Error implements error.
func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Part, e.Err)
}

// Unwrap returns the transport error.
func (e *TransferError) Unwrap() error {
	return e.Err
}
