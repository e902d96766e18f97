package tx

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
)

var errDMA = errors.New("dma busy")

// testPort completes every transfer asynchronously, like a DMA interrupt.
type testPort struct {
	t        *testing.T
	ch       *Channel
	inFlight atomic.Int32
	failAt   int // 1-based index of the transfer to reject, 0 for none

	lock      sync.Mutex
	transfers [][]byte
}

func newTestChannel(t *testing.T) (*Channel, *testPort) {
	port := &testPort{t: t}
	ch := New(port)
	ch.sleep = func(time.Duration) {}
	port.ch = ch
	return ch, port
}

func (p *testPort) Transmit(data []byte) error {
	p.lock.Lock()
	n := len(p.transfers) + 1
	if p.failAt > 0 && n == p.failAt {
		p.lock.Unlock()
		return errDMA
	}
	p.transfers = append(p.transfers, append([]byte{}, data...))
	p.lock.Unlock()
	if !p.inFlight.CompareAndSwap(0, 1) {
		p.t.Error("transfer issued while another is in flight")
	}
	go func() {
		p.inFlight.Store(0)
		p.ch.Complete()
	}()
	return nil
}

func (p *testPort) wire() []byte {
	p.lock.Lock()
	defer p.lock.Unlock()
	return bytes.Join(p.transfers, nil)
}

func (p *testPort) count() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return len(p.transfers)
}

func TestSendLayout(t *testing.T) {
	ch, port := newTestChannel(t)
	var sleeps int
	ch.sleep = func(d time.Duration) {
		require.Equal(t, DefaultPacing, d)
		sleeps++
	}
	payload := pbuf.New([]byte{1, 2, 3}, []byte{}, []byte{4, 5})
	require.NoError(t, ch.Send(frame.Packet, 1, pbuf.Borrowed(payload)))
	require.Equal(t, 4, port.count())
	require.Equal(t, 2, sleeps)
	require.Equal(t, frame.Append(nil, frame.DefaultIntron, frame.Packet, 1, []byte{1, 2, 3, 4, 5}), port.wire())
	require.Equal(t, uint64(frame.OverheadLen+5), ch.BytesSent())
}

func TestSendEmpty(t *testing.T) {
	ch, port := newTestChannel(t)
	require.NoError(t, ch.Send(frame.ScanStart, 0, pbuf.Ref{}))
	require.Equal(t, 2, port.count())
	require.Equal(t, frame.Append(nil, frame.DefaultIntron, frame.ScanStart, 0, nil), port.wire())
}

func TestSendReleasesOwnedPayload(t *testing.T) {
	ch, _ := newTestChannel(t)
	pool := pbuf.NewPool(2, 8)
	buf, err := pbuf.FromBytes(pool, []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, ch.Send(frame.Packet, 1, pbuf.Borrowed(buf)))
	require.Equal(t, 0, pool.Available())
	require.NoError(t, ch.Send(frame.Packet, 1, pbuf.Owned(buf)))
	require.Equal(t, 2, pool.Available())
}

func TestSendPayloadTooLarge(t *testing.T) {
	ch, port := newTestChannel(t)
	pool := pbuf.NewPool(2, frame.MaxPayload)
	buf, err := pool.Alloc(frame.MaxPayload + 1)
	require.NoError(t, err)
	require.Equal(t, ErrPayloadTooLarge, ch.Send(frame.Packet, 1, pbuf.Owned(buf)))
	require.Equal(t, 2, pool.Available())
	require.Zero(t, port.count())
}

func TestSendTransportError(t *testing.T) {
	testCases := []struct {
		name   string
		failAt int
		part   Part
		sent   int
	}{
		{"prelude", 1, PartPrelude, 0},
		{"payload", 3, PartPayload, 2},
		{"trailer", 4, PartTrailer, 3},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ch, port := newTestChannel(t)
			port.failAt = tc.failAt
			err := ch.Send(frame.Packet, 1, pbuf.Borrowed(pbuf.New([]byte{1}, []byte{2})))
			var te *TransferError
			require.True(t, errors.As(err, &te))
			require.Equal(t, tc.part, te.Part)
			require.True(t, errors.Is(err, errDMA))
			require.Equal(t, tc.sent, port.count())

			// the channel is usable again.
			port.failAt = 0
			require.NoError(t, ch.Send(frame.ScanStop, 0, pbuf.Ref{}))
		})
	}
}

func TestSingleFlight(t *testing.T) {
	ch, port := newTestChannel(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 20; n++ {
				payload := pbuf.New([]byte{byte(i)}, []byte{byte(n)})
				require.NoError(t, ch.Send(frame.Packet, 1, pbuf.Borrowed(payload)))
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 8*20*4, port.count())

	// messages are never interleaved.
	wire := port.wire()
	for len(wire) > 0 {
		msgLen := frame.OverheadLen + 2
		require.GreaterOrEqual(t, len(wire), msgLen)
		msg := wire[:msgLen]
		require.Equal(t, frame.Append(nil, frame.DefaultIntron, frame.Packet, 1, msg[frame.PreludeLen:frame.PreludeLen+2]), msg)
		wire = wire[msgLen:]
	}
}

func TestCompletionReleasedOnce(t *testing.T) {
	var s slot
	for i := 0; i < 500; i++ {
		token := s.claim()
		var releases atomic.Int32
		var wg sync.WaitGroup
		for n := 0; n < 4; n++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.complete() {
					releases.Add(1)
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.withdraw(token) {
				releases.Add(1)
			}
		}()
		wg.Wait()
		require.Equal(t, int32(1), releases.Load())
		select {
		case <-token.Done():
		default:
			t.Fatal("token not released")
		}
	}
}

func TestClaimWhileInFlight(t *testing.T) {
	var s slot
	s.claim()
	require.Panics(t, func() { s.claim() })
	require.True(t, s.complete())
	require.False(t, s.complete())
	s.claim()
}

type scanFlag bool

func (s scanFlag) IsRunning() bool { return bool(s) }

func TestClientConfig(t *testing.T) {
	ch, port := newTestChannel(t)
	ch.Rand = bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef})
	require.NoError(t, ch.SendClientConfig("net", "secret"))

	expected := frame.Intron{'U', 'N', 0xde, 0xad, 0xbe, 0xef}
	require.Equal(t, expected, ch.Intron())

	payload := make([]byte, frame.ClientConfigLen("net", "secret"))
	frame.PutClientConfig(payload, expected, "net", "secret")
	// the config itself still goes out with the old intron.
	require.Equal(t, frame.Append(nil, frame.DefaultIntron, frame.ClientConfig, 0, payload), port.wire())

	require.NoError(t, ch.Send(frame.ScanStart, 0, pbuf.Ref{}))
	require.Equal(t, expected[:], port.wire()[len(port.wire())-frame.OverheadLen:][:frame.IntronLen])

	ch.ResetIntron()
	require.Equal(t, frame.DefaultIntron, ch.Intron())
}

func TestClientConfigRerollsSameTail(t *testing.T) {
	ch, _ := newTestChannel(t)
	ch.Rand = bytes.NewReader([]byte{0, 1, 2, 3, 9, 9, 9, 9})
	require.NoError(t, ch.SendClientConfig("a", "b"))
	require.Equal(t, frame.Intron{'U', 'N', 9, 9, 9, 9}, ch.Intron())
}

func TestClientConfigFailureKeepsIntron(t *testing.T) {
	ch, port := newTestChannel(t)
	port.failAt = 2
	require.Error(t, ch.SendClientConfig("a", "b"))
	require.Equal(t, frame.DefaultIntron, ch.Intron())
}

func TestClientConfigRejected(t *testing.T) {
	ch, port := newTestChannel(t)
	ch.Scan = scanFlag(true)
	require.Equal(t, ErrScanRunning, ch.SendClientConfig("a", "b"))
	ch.Scan = scanFlag(false)
	require.Equal(t, ErrTooLong, ch.SendClientConfig(string(make([]byte, 256)), "b"))
	require.Equal(t, 0, port.count())
}

func TestClientConfigAllocFailure(t *testing.T) {
	ch, port := newTestChannel(t)
	ch.Alloc = pbuf.NewPool(0, 8)
	require.Equal(t, pbuf.ErrNoMem, ch.SendClientConfig("a", "b"))
	require.Equal(t, 0, port.count())
	require.Equal(t, frame.DefaultIntron, ch.Intron())
}
