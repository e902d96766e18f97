package rx

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
)

// received flattens a Message so results can be compared with Equal.
type received struct {
	Msg  Message
	Data []byte
}

type collector struct {
	t    *testing.T
	msgs []received
}

func (c *collector) HandleMessage(msg Message) {
	if pkt, ok := msg.(Packet); ok {
		data := append([]byte{}, pkt.Buffer.Bytes()...)
		pkt.Buffer.Release()
		c.msgs = append(c.msgs, received{Msg: Packet{Up: pkt.Up}, Data: data})
		return
	}
	c.msgs = append(c.msgs, received{Msg: msg})
}

type streamBuilder struct {
	intron frame.Intron
	data   []byte
}

func stream() *streamBuilder {
	return &streamBuilder{intron: frame.DefaultIntron}
}

func (b *streamBuilder) msg(typ frame.MessageType, vb byte, payload ...byte) *streamBuilder {
	b.data = frame.Append(b.data, b.intron, typ, vb, payload)
	return b
}

func (b *streamBuilder) raw(bs ...byte) *streamBuilder {
	b.data = append(b.data, bs...)
	return b
}

func (b *streamBuilder) packet(up bool, size int) *streamBuilder {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	var vb byte
	if up {
		vb = 1
	}
	return b.msg(frame.Packet, vb, payload...)
}

func (b *streamBuilder) corrupt(offsetFromEnd int) *streamBuilder {
	b.data[len(b.data)-offsetFromEnd] ^= 0x5a
	return b
}

func parseChunks(t *testing.T, pool *pbuf.Pool, chunks ...[]byte) []received {
	p := New(pool)
	c := &collector{t: t}
	for _, chunk := range chunks {
		p.Feed(chunk, c)
	}
	return c.msgs
}

func mixedStream() []byte {
	return stream().
		raw(0x00, 'U', 'N', 'U', 'N', 0).
		msg(frame.DeviceInfo, frame.RequiredProtocolVersion, 1, 2, 3, 4, 5, 6).
		packet(true, 1300).
		msg(frame.ScanAPCount, 3).
		raw('U', 'N', 0, 1).
		msg(frame.ScanAPInfo, 2, frame.APInfo{SSID: "lab", RequiresPassword: true}.Bytes()...).
		packet(false, 0).
		packet(true, 17).
		data
}

func TestParserMessages(t *testing.T) {
	pool := pbuf.NewPool(8, 512)
	msgs := parseChunks(t, pool, mixedStream())
	require.Len(t, msgs, 6)
	require.Equal(t, DeviceInfo{Version: frame.RequiredProtocolVersion, MAC: []byte{1, 2, 3, 4, 5, 6}}, msgs[0].Msg)
	require.Equal(t, Packet{Up: true}, msgs[1].Msg)
	require.Len(t, msgs[1].Data, 1300)
	require.Equal(t, byte(7), msgs[1].Data[1])
	require.Equal(t, APCount{Count: 3}, msgs[2].Msg)
	require.Equal(t, APInfo{Index: 2, Info: frame.APInfo{SSID: "lab", RequiresPassword: true}}, msgs[3].Msg)
	require.Equal(t, Packet{Up: false}, msgs[4].Msg)
	require.Empty(t, msgs[4].Data)
	require.Len(t, msgs[5].Data, 17)
	require.Equal(t, 8, pool.Available())
}

func TestParserChunkBoundaries(t *testing.T) {
	data := mixedStream()
	pool := pbuf.NewPool(8, 512)
	expected := parseChunks(t, pool, data)

	for size := 1; size <= 64; size++ {
		var chunks [][]byte
		for rest := data; len(rest) > 0; {
			n := size
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equalf(t, expected, parseChunks(t, pool, chunks...), "chunk size %d", size)
	}

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		var chunks [][]byte
		for rest := data; len(rest) > 0; {
			n := rnd.Intn(100) + 1
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equalf(t, expected, parseChunks(t, pool, chunks...), "random split %d", i)
	}
	require.Equal(t, 8, pool.Available())
}

func TestParserRingWraparound(t *testing.T) {
	data := mixedStream()
	pool := pbuf.NewPool(8, 512)
	expected := parseChunks(t, pool, data)

	for _, ringLen := range []int{37, 64, 500} {
		ring := make([]byte, ringLen)
		p := New(pool)
		c := &collector{t: t}
		var wr, rd int
		rnd := rand.New(rand.NewSource(int64(ringLen)))
		for rest := data; len(rest) > 0; {
			// DMA writes at most one ring worth ahead of the reader.
			n := rnd.Intn(ringLen) + 1
			if n > len(rest) {
				n = len(rest)
			}
			for _, b := range rest[:n] {
				ring[wr] = b
				wr = (wr + 1) % ringLen
			}
			rest = rest[n:]
			if wr > rd {
				p.Feed(ring[rd:wr], c)
			} else {
				p.Feed(ring[rd:], c)
				if wr > 0 {
					p.Feed(ring[:wr], c)
				}
			}
			rd = wr
		}
		require.Equalf(t, expected, c.msgs, "ring length %d", ringLen)
	}
}

func TestParserChecksumMismatch(t *testing.T) {
	testCases := []struct {
		name   string
		offset int
	}{
		{"trailer", 1},
		{"payload", frame.TrailerLen + 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pool := pbuf.NewPool(4, 64)
			data := stream().
				msg(frame.ScanAPCount, 1).
				packet(true, 100).corrupt(tc.offset).
				msg(frame.ScanAPCount, 2).
				data
			p := New(pool)
			c := &collector{t: t}
			p.Feed(data, c)
			require.Equal(t, []received{{Msg: APCount{Count: 1}}, {Msg: APCount{Count: 2}}}, c.msgs)
			require.Equal(t, uint64(1), p.Stats().ChecksumErrors)
			require.Equal(t, 4, pool.Available())
		})
	}
}

func TestParserAllocFailure(t *testing.T) {
	pool := pbuf.NewPool(2, 16)
	data := stream().
		packet(true, 40).
		packet(true, 20).
		data
	p := New(pool)
	c := &collector{t: t}
	p.Feed(data, c)
	require.Len(t, c.msgs, 1)
	require.Len(t, c.msgs[0].Data, 20)
	require.Equal(t, uint64(1), p.Stats().AllocErrors)
	require.Equal(t, 2, pool.Available())
}

func TestParserOversizedControlMessage(t *testing.T) {
	pool := pbuf.NewPool(1, 16)
	data := stream().
		msg(frame.DeviceInfo, 1, make([]byte, SmallBufferSize+1)...).
		msg(frame.ScanAPCount, 5).
		data
	p := New(pool)
	c := &collector{t: t}
	p.Feed(data, c)
	require.Equal(t, []received{{Msg: APCount{Count: 5}}}, c.msgs)
	require.Equal(t, uint64(1), p.Stats().Oversized)
}

func TestParserInvalidType(t *testing.T) {
	pool := pbuf.NewPool(1, 16)
	data := stream().
		msg(frame.MessageType(0x42), 9, 1, 2).
		msg(frame.ScanAPCount, 5).
		data
	msgs := parseChunks(t, pool, data)
	require.Equal(t, []received{
		{Msg: Invalid{Header: frame.Header{Type: 0x42, VariableByte: 9, Size: 2}}},
		{Msg: APCount{Count: 5}},
	}, msgs)
}

func TestParserMalformed(t *testing.T) {
	pool := pbuf.NewPool(1, 16)
	data := stream().
		msg(frame.DeviceInfo, 1, 1, 2, 3).
		msg(frame.ScanAPInfo, 0, 1).
		data
	p := New(pool)
	c := &collector{t: t}
	p.Feed(data, c)
	require.Empty(t, c.msgs)
	require.Equal(t, uint64(2), p.Stats().Malformed)
}

func TestParserSetIntron(t *testing.T) {
	pool := pbuf.NewPool(1, 16)
	intron := frame.DefaultIntron.WithTail([4]byte{0xde, 0xad, 0xbe, 0xef})
	old := stream().msg(frame.ScanAPCount, 1).data
	updated := &streamBuilder{intron: intron}
	updated.msg(frame.ScanAPCount, 2)

	p := New(pool)
	p.SetIntron(intron)
	require.Equal(t, intron, p.Intron())
	c := &collector{t: t}
	p.Feed(old, c)
	p.Feed(updated.data, c)
	require.Equal(t, []received{{Msg: APCount{Count: 2}}}, c.msgs)
}

func TestParserSelfOverlappingIntron(t *testing.T) {
	intron := frame.Intron{'U', 'N', 'U', 'N', 'U', 'X'}
	b := &streamBuilder{intron: intron}
	b.raw('U', 'N').msg(frame.ScanAPCount, 7)

	p := New(pbuf.NewPool(1, 16))
	p.SetIntron(intron)
	c := &collector{t: t}
	for i := range b.data {
		p.Feed(b.data[i:i+1], c)
	}
	require.Equal(t, []received{{Msg: APCount{Count: 7}}}, c.msgs)
}

func TestParserReset(t *testing.T) {
	pool := pbuf.NewPool(2, 64)
	data := stream().packet(true, 100).data
	p := New(pool)
	c := &collector{t: t}
	p.Feed(data[:50], c)
	require.Equal(t, 0, pool.Available())
	p.Reset()
	require.Equal(t, 2, pool.Available())
	p.Feed(data[50:], c)
	require.Empty(t, c.msgs)
	p.Feed(data, c)
	require.Len(t, c.msgs, 1)
}
