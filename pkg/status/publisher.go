package status

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/espnic/pkg/framework"
)

// DefaultPeriod is the default reporting period.
const DefaultPeriod = 5 * time.Second

// Payload formats.
const (
	FormatProto = "proto"
	FormatJSON  = "json"
)

// Queue publishes payloads, implemented by mqtt.Queue.
type Queue interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Publisher publishes a retained snapshot to <device>/status whenever the
// state changes, and at least every Period.
type Publisher struct {
	Device string
	Source Source
	Addr   AddrSource
	Queue  Queue
	Format string
	Period time.Duration

	last     string
	lastTime time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(device string, src Source, q Queue) *Publisher {
	return &Publisher{
		Device: device,
		Source: src,
		Queue:  q,
		Format: FormatProto,
		Period: DefaultPeriod,
	}
}

// Topic returns the topic snapshots are published to.
func (p *Publisher) Topic() string {
	return p.Device + "/status"
}

// Encode serializes a snapshot in the configured format.
func (p *Publisher) Encode() ([]byte, error) {
	snapshot := Snapshot(p.Device, p.Source, p.Addr)
	switch p.Format {
	case FormatProto, "":
		return proto.Marshal(snapshot)
	case FormatJSON:
		str, err := (&jsonpb.Marshaler{}).MarshalToString(snapshot)
		return []byte(str), err
	}
	return nil, fmt.Errorf("unknown status format %q", p.Format)
}

// Publish publishes the snapshot if state changed or Period elapsed since
// last publish. It returns whether a snapshot was published.
func (p *Publisher) Publish(now time.Time) (bool, error) {
	summary := p.summary()
	if summary == p.last && !p.lastTime.IsZero() && now.Sub(p.lastTime) < p.Period {
		return false, nil
	}
	payload, err := p.Encode()
	if err != nil {
		return false, err
	}
	// Never waits for the broker, only failures already known are reported.
	token := p.Queue.PubWith(p.Topic(), payload, 0, true)
	if token.WaitTimeout(0) && token.Error() != nil {
		return false, token.Error()
	}
	if summary != p.last {
		glog.V(1).Infof("status %s", summary)
	}
	p.last, p.lastTime = summary, now
	return true, nil
}

// summary is the part of the state whose change triggers a publish.
func (p *Publisher) summary() string {
	return fmt.Sprintf("%s/%s/%s", p.Source.Mode(), p.Source.FwState(), p.Source.LinkState())
}

// AddToLoop implements framework.LoopAdder.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvReport, fx.ControlFunc(func(cc fx.ControlContext) error {
		if _, err := p.Publish(cc.Time()); err != nil {
			glog.Warningf("publish status error: %v", err)
		}
		return nil
	}))
}
