// Package transport defines the UART collaborator of the bridge.
package transport

// Notifier receives transport events. Implementations never block, so the
// methods can be called from an interrupt-like context.
type Notifier interface {
	// TxComplete reports the end of the transfer issued by Transmit.
	TxComplete()
	// LineError reports a framing or overrun error on the receive line.
	LineError()
	// RxIdle reports the receive line went idle after some bytes.
	RxIdle()
}

// Transport is a duplex UART with a free-running receive ring.
type Transport interface {
	// Transmit issues a transfer of p. On success exactly one TxComplete
	// follows; on error none does. p must not be modified until completion.
	Transmit(p []byte) error
	// RxBuffer returns the receive ring. The transport writes into it
	// circularly starting from position 0 after StartRx.
	RxBuffer() []byte
	// RxRemaining returns the number of bytes left until the write position
	// wraps to the start of the ring.
	RxRemaining() int
	// StartRx (re)starts reception at the start of the ring and binds the
	// notifier. Bytes not yet read are discarded.
	StartRx(n Notifier) error
}

// ResetLine toggles the hardware reset of the co-processor. Reset returns
// after the line has settled.
type ResetLine interface {
	Reset() error
}
