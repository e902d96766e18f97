package status

import (
	"errors"
	"net"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/espnic/pkg/espif"
	"github.com/robotalks/espnic/pkg/espif/mode"
)

type testSource struct {
	mode  mode.Mode
	stats espif.Stats
}

func (s *testSource) Mode() mode.Mode           { return s.mode }
func (s *testSource) FwState() mode.FwState     { return mode.FwOK }
func (s *testSource) LinkState() mode.LinkState { return mode.LinkUp }
func (s *testSource) LinkIsUp() bool            { return true }
func (s *testSource) ScanIsRunning() bool       { return false }
func (s *testSource) ScanAPCount() int          { return 3 }
func (s *testSource) Stats() espif.Stats        { return s.stats }

type testAddr net.HardwareAddr

func (a testAddr) HardwareAddr() net.HardwareAddr { return net.HardwareAddr(a) }

type publication struct {
	topic   string
	payload []byte
	retain  bool
}

type errToken struct {
	paho.DummyToken
	err error
}

func (t *errToken) Error() error { return t.err }

type testQueue struct {
	pubs []publication
	err  error
}

func (q *testQueue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	if q.err != nil {
		return &errToken{err: q.err}
	}
	q.pubs = append(q.pubs, publication{topic: topic, payload: payload, retain: retain})
	return &paho.DummyToken{}
}

func TestSnapshot(t *testing.T) {
	src := &testSource{mode: mode.Running, stats: espif.Stats{BytesIn: 10, PacketsOut: 2}}
	src.stats.Parser.ChecksumErrors = 1
	s := Snapshot("dev", src, testAddr{0x18, 0xfe, 0x34, 1, 2, 3})
	assert.Equal(t, "dev", s.Fields["device"].GetStringValue())
	assert.Equal(t, "running", s.Fields["mode"].GetStringValue())
	assert.Equal(t, "ok", s.Fields["fw_state"].GetStringValue())
	assert.Equal(t, "up", s.Fields["link_state"].GetStringValue())
	assert.True(t, s.Fields["link_up"].GetBoolValue())
	assert.Equal(t, "18:fe:34:01:02:03", s.Fields["mac"].GetStringValue())
	stats := s.Fields["stats"].GetStructValue().Fields
	assert.Equal(t, float64(10), stats["bytes_in"].GetNumberValue())
	assert.Equal(t, float64(2), stats["packets_out"].GetNumberValue())
	assert.Equal(t, float64(1), stats["checksum_errors"].GetNumberValue())
	scan := s.Fields["scan"].GetStructValue().Fields
	assert.Equal(t, float64(3), scan["ap_count"].GetNumberValue())

	s = Snapshot("dev", src, testAddr(nil))
	assert.NotContains(t, s.Fields, "mac")
}

func TestPublishOnChangeOrPeriod(t *testing.T) {
	src, q := &testSource{mode: mode.WaitInit}, &testQueue{}
	p := NewPublisher("dev", src, q)
	p.Period = time.Second
	now := time.Now()

	published, err := p.Publish(now)
	require.NoError(t, err)
	require.True(t, published)
	published, err = p.Publish(now.Add(100 * time.Millisecond))
	require.NoError(t, err)
	require.False(t, published)

	src.mode = mode.Running
	published, err = p.Publish(now.Add(200 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, published)

	published, err = p.Publish(now.Add(1300 * time.Millisecond))
	require.NoError(t, err)
	require.True(t, published)

	require.Len(t, q.pubs, 3)
	for _, pub := range q.pubs {
		assert.Equal(t, "dev/status", pub.topic)
		assert.True(t, pub.retain)
	}
	var decoded structpb.Struct
	require.NoError(t, proto.Unmarshal(q.pubs[2].payload, &decoded))
	assert.Equal(t, "running", decoded.Fields["mode"].GetStringValue())
}

func TestPublishJSON(t *testing.T) {
	q := &testQueue{}
	p := NewPublisher("dev", &testSource{mode: mode.NeedAP}, q)
	p.Format = FormatJSON
	_, err := p.Publish(time.Now())
	require.NoError(t, err)
	require.Len(t, q.pubs, 1)
	var decoded structpb.Struct
	require.NoError(t, jsonpb.UnmarshalString(string(q.pubs[0].payload), &decoded))
	assert.Equal(t, "need-ap", decoded.Fields["mode"].GetStringValue())
}

func TestPublishFailure(t *testing.T) {
	q := &testQueue{err: errors.New("not connected")}
	p := NewPublisher("dev", &testSource{mode: mode.Running}, q)
	_, err := p.Publish(time.Now())
	require.EqualError(t, err, "not connected")

	p.Format = "xml"
	_, err = p.Publish(time.Now())
	require.Error(t, err)
}
