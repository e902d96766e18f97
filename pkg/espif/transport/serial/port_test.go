package serial

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	goserial "go.bug.st/serial"
)

type testSerial struct {
	goserial.Port
	written atomic.Int32
}

func (s *testSerial) Write(p []byte) (int, error) {
	s.written.Add(1)
	return len(p), nil
}

func (s *testSerial) Close() error {
	return nil
}

type testNotifier struct {
	completes atomic.Int32
}

func (n *testNotifier) TxComplete() { n.completes.Add(1) }
func (n *testNotifier) LineError() {}
func (n *testNotifier) RxIdle() {}

func newRing(size int) *Port {
	p := &Port{
		ring:    make([]byte, size),
		txCh:    make(chan []byte, 1),
		closeCh: make(chan struct{}),
	}
	p.remaining.Store(int32(size))
	return p
}

func TestStoreWraps(t *testing.T) {
	p := newRing(8)
	p.store([]byte{1, 2, 3, 4, 5})
	require.Equal(t, 3, p.RxRemaining())
	p.store([]byte{6, 7, 8, 9, 10})
	require.Equal(t, 6, p.RxRemaining())
	require.Equal(t, []byte{9, 10, 3, 4, 5, 6, 7, 8}, p.RxBuffer())
	p.store([]byte{11, 12, 13, 14, 15, 16})
	require.Equal(t, 8, p.RxRemaining())
}

func TestTransmitBusy(t *testing.T) {
	p := newRing(8)
	require.NoError(t, p.Transmit([]byte{1}))
	require.Equal(t, ErrBusy, p.Transmit([]byte{2}))
	<-p.txCh
	require.NoError(t, p.Transmit([]byte{3}))
	close(p.closeCh)
	require.Equal(t, ErrClosed, p.Transmit([]byte{4}))
}

func TestOpenRequiresPort(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestCloseCompletesQueuedTransfer(t *testing.T) {
	for i := 0; i < 100; i++ {
		p := newRing(8)
		port := &testSerial{}
		p.port = port
		n := &testNotifier{}
		p.notifier.Store(&notifierBox{n})

		require.NoError(t, p.Transmit([]byte{1}))
		require.NoError(t, p.Close())
		p.wg.Add(1)
		p.writeLoop()
		require.Equal(t, int32(1), n.completes.Load())
		require.LessOrEqual(t, port.written.Load(), int32(1))
		require.Equal(t, ErrClosed, p.Transmit([]byte{2}))
	}
}
