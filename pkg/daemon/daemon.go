package daemon

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	"github.com/robotalks/espnic/pkg/cli/sh"
	"github.com/robotalks/espnic/pkg/comm"
	"github.com/robotalks/espnic/pkg/comm/mqtt"
	"github.com/robotalks/espnic/pkg/espif"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	"github.com/robotalks/espnic/pkg/espif/transport"
	"github.com/robotalks/espnic/pkg/espif/transport/serial"
	fx "github.com/robotalks/espnic/pkg/framework"
	"github.com/robotalks/espnic/pkg/netif"
	"github.com/robotalks/espnic/pkg/status"
)

// Daemon is a bridge with all of its peers.
type Daemon struct {
	Config *Config
	Device string

	Pool   *pbuf.Pool
	Bridge *espif.Bridge
	Tap    *netif.Tap
	Status *status.Publisher
	Shell  *sh.Shell

	closers []io.Closer
}

// New opens the serial port, the packet channel and the status broker.
func (c *Config) New() (*Daemon, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	device := c.Device
	if device == "" {
		device = DeviceID()
	}
	port, err := serial.Open(c.Serial)
	if err != nil {
		return nil, err
	}
	conn, err := netif.Open(c.PacketURL, device)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("open packet channel: %w", err)
	}
	d := NewWith(c, device, port, port, conn)
	d.closers = append(d.closers, port)
	if c.StatusURL != "" {
		q, err := mqtt.NewQueueFromURL(c.StatusURL, device+"-status")
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("status broker: %w", err)
		}
		if err := q.ConnectAndWait(); err != nil {
			d.Close()
			return nil, fmt.Errorf("connect status broker: %w", err)
		}
		d.closers = append(d.closers, q)
		d.Status = status.NewPublisher(device, d.Bridge, q)
		d.Status.Addr = d.Tap
		d.Status.Format = c.StatusFormat
		d.Status.Period = c.StatusPeriod
	}
	return d, nil
}

// NewWith assembles a Daemon on top of an opened transport and packet
// channel. line may be nil if the co-processor can't be reset.
func NewWith(c *Config, device string, t transport.Transport, line transport.ResetLine, conn comm.PacketReadWriter) *Daemon {
	d := &Daemon{
		Config: c,
		Device: device,
		Pool:   pbuf.NewPool(c.PoolSegments, c.SegmentSize),
	}
	opts := c.BridgeOptions()
	opts.Alloc = d.Pool
	opts.ResetLine = line
	d.Bridge = espif.New(t, opts)
	d.Tap = netif.NewTapWithQueue(conn, d.Bridge, d.Pool, c.QueueSize)
	if c.Interactive {
		d.Shell = sh.New(d.Bridge)
		d.Shell.Device = device
		d.Shell.OutputJSON = c.OutputJSON
		d.Shell.Addr = d.Tap
	}
	return d
}

// AddToLoop implements framework.LoopAdder.
func (d *Daemon) AddToLoop(loop *fx.Loop) {
	loop.Add(d.Bridge, d.Tap)
	if d.Status != nil {
		loop.Add(d.Status)
	}
}

// Run implements Runnable. The co-processor is reset once the bridge is
// initialized so it reports itself. An interactive shell stops the daemon
// when it exits.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Bridge.Init(d.Tap); err != nil {
		return err
	}
	if err := d.Bridge.Reset(); err != nil {
		glog.Warningf("reset co-processor: %v", err)
	}
	glog.Infof("bridge %s started", d.Device)

	loop := fx.NewLoop()
	loop.Interval = d.Config.PollInterval
	loop.Add(d)
	runner := fx.NewRunnerWith(ctx).StopOnExit().Go(fx.NamedRun("loop", loop))
	if d.Shell != nil {
		runner.Go(fx.NamedRun("shell", fx.RunFunc(func(ctx context.Context) error {
			return d.Shell.Run(ctx)
		})))
	}
	return runner.Wait()
}

// Close implements io.Closer.
func (d *Daemon) Close() error {
	var errs fx.AggregatedError
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs.Add(d.closers[i].Close())
	}
	d.closers = nil
	return errs.Aggregate()
}

// Main is a helper to provide a single call in main.
func Main() error {
	conf := NewConfig()
	if conf.ListPorts {
		ports, err := serial.List()
		if err != nil {
			return err
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return nil
	}
	d, err := conf.New()
	if err != nil {
		return err
	}
	defer d.Close()
	return fx.NewRunner().HandleSignals().Go(d).Wait()
}
