package tx

import "sync/atomic"

// Token is the completion claim of one DMA transfer. It is obtained by
// claiming the completion slot of a Channel, and it is released exactly
// once: by the transport completion (Channel.Complete) or by the issuer
// withdrawing it after the transport rejected the transfer.
type Token struct {
	done     chan struct{}
	released atomic.Bool
}

// Done is closed when the token is released.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

func (t *Token) release() {
	if !t.released.CompareAndSwap(false, true) {
		panic("tx: completion token released twice")
	}
	close(t.done)
}

// slot holds the token of the transfer in flight.
type slot struct {
	active atomic.Pointer[Token]
}

// claim installs a new token. Only one transfer may be in flight.
func (s *slot) claim() *Token {
	t := &Token{done: make(chan struct{})}
	if old := s.active.Swap(t); old != nil {
		panic("tx: transfer issued while another is in flight")
	}
	return t
}

// complete releases the active token, if any. Safe from any goroutine and
// never blocks.
func (s *slot) complete() bool {
	if t := s.active.Swap(nil); t != nil {
		t.release()
		return true
	}
	return false
}

// withdraw releases t if it is still the active token. Whoever swaps the
// token out of the slot releases it, so it is released exactly once.
func (s *slot) withdraw(t *Token) bool {
	if s.active.CompareAndSwap(t, nil) {
		t.release()
		return true
	}
	return false
}
