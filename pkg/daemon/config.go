// Package daemon wires a serial attached co-processor, the bridge, the packet
// channel and the status reports into a running process.
package daemon

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robotalks/espnic/pkg/espif"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
	"github.com/robotalks/espnic/pkg/espif/scan"
	"github.com/robotalks/espnic/pkg/espif/transport/serial"
	fx "github.com/robotalks/espnic/pkg/framework"
	"github.com/robotalks/espnic/pkg/netif"
	"github.com/robotalks/espnic/pkg/status"
)

// Config provides the options of the bridge daemon.
type Config struct {
	// Device names this bridge on shared channels, defaults to an ID
	// derived from the machine ID.
	Device string

	Serial serial.Config

	// PacketURL specifies the channel carrying the network frames.
	// e.g. stdio:, ws://host:port/path, mqtt://host:port/topic-prefix
	PacketURL string
	// StatusURL specifies the MQTT broker status is published to.
	// Empty disables status reports.
	StatusURL    string
	StatusFormat string
	StatusPeriod time.Duration

	PollInterval time.Duration
	TickInterval time.Duration
	ScanTimeout  time.Duration
	QueueSize    int
	PoolSegments int
	SegmentSize  int

	Interactive    bool
	OutputJSON     bool
	PanicOnInvalid bool
	ListPorts      bool
}

var defaultConfig = Config{
	Serial: serial.Config{
		BaudRate:     serial.DefaultBaudRate,
		RxBufferSize: serial.DefaultRxBufferSize,
		ResetSettle:  serial.DefaultResetSettle,
	},
	PacketURL:    "stdio:",
	StatusFormat: status.FormatProto,
	StatusPeriod: status.DefaultPeriod,
	PollInterval: fx.DefaultInterval,
	TickInterval: espif.DefaultTickInterval,
	ScanTimeout:  scan.DefaultTimeout,
	QueueSize:    netif.DefaultQueueSize,
	PoolSegments: espif.DefaultPoolSegments,
	SegmentSize:  pbuf.DefaultSegmentSize,
}

func init() {
	if val := os.Getenv("ESPIF_PORT"); val != "" {
		defaultConfig.Serial.Port = val
	}
	if val := os.Getenv("ESPIF_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.Serial.BaudRate = baud
		}
	}
	if val := os.Getenv("ESPIF_PACKET_URL"); val != "" {
		defaultConfig.PacketURL = val
	}
	if val := os.Getenv("ESPIF_STATUS_URL"); val != "" {
		defaultConfig.StatusURL = val
	}
	if val := os.Getenv("ESPIF_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Device name, defaults to machine ID")
	flag.StringVar(&defaultConfig.Serial.Port, "port", defaultConfig.Serial.Port, "Serial port of the co-processor")
	flag.IntVar(&defaultConfig.Serial.BaudRate, "baud", defaultConfig.Serial.BaudRate, "Serial baud rate")
	flag.IntVar(&defaultConfig.Serial.RxBufferSize, "rx-buffer", defaultConfig.Serial.RxBufferSize, "Receive ring size in bytes")
	flag.DurationVar(&defaultConfig.Serial.ResetSettle, "reset-settle", defaultConfig.Serial.ResetSettle, "Duration of the reset pulse")
	flag.StringVar(&defaultConfig.PacketURL, "packet", defaultConfig.PacketURL, "Packet channel URL")
	flag.StringVar(&defaultConfig.StatusURL, "status", defaultConfig.StatusURL, "MQTT broker URL for status reports")
	flag.StringVar(&defaultConfig.StatusFormat, "status-format", defaultConfig.StatusFormat, "Status payload format: proto or json")
	flag.DurationVar(&defaultConfig.StatusPeriod, "status-period", defaultConfig.StatusPeriod, "Maximum period between status reports")
	flag.DurationVar(&defaultConfig.PollInterval, "poll", defaultConfig.PollInterval, "Receive poll interval")
	flag.DurationVar(&defaultConfig.TickInterval, "tick", defaultConfig.TickInterval, "Health check interval")
	flag.DurationVar(&defaultConfig.ScanTimeout, "scan-timeout", defaultConfig.ScanTimeout, "Timeout of each AP info query")
	flag.IntVar(&defaultConfig.QueueSize, "queue", defaultConfig.QueueSize, "Frames queued toward the packet channel")
	flag.IntVar(&defaultConfig.PoolSegments, "pool", defaultConfig.PoolSegments, "Number of packet buffer segments")
	flag.IntVar(&defaultConfig.SegmentSize, "segment", defaultConfig.SegmentSize, "Size of a packet buffer segment")
	flag.BoolVar(&defaultConfig.Interactive, "i", defaultConfig.Interactive, "Run interactive shell")
	flag.BoolVar(&defaultConfig.OutputJSON, "json", defaultConfig.OutputJSON, "Print shell output in JSON")
	flag.BoolVar(&defaultConfig.PanicOnInvalid, "panic-on-invalid", defaultConfig.PanicOnInvalid, "Panic on unexpected message, for debugging")
	flag.BoolVar(&defaultConfig.ListPorts, "list-ports", defaultConfig.ListPorts, "List serial ports and exit")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial port must be specified")
	}
	if c.PacketURL == "" {
		return fmt.Errorf("packet channel must be specified")
	}
	if c.Interactive && (c.PacketURL == "stdio:" || c.PacketURL == "-") {
		return fmt.Errorf("interactive shell can't share stdio with packet channel")
	}
	switch c.StatusFormat {
	case status.FormatProto, status.FormatJSON:
	default:
		return fmt.Errorf("unknown status format %q", c.StatusFormat)
	}
	if c.PoolSegments <= 0 || c.SegmentSize <= 0 {
		return fmt.Errorf("invalid packet pool %dx%d", c.PoolSegments, c.SegmentSize)
	}
	return nil
}

// BridgeOptions derives the bridge options.
func (c *Config) BridgeOptions() espif.Options {
	opts := espif.DefaultOptions()
	opts.ScanTimeout = c.ScanTimeout
	opts.TickInterval = c.TickInterval
	opts.PanicOnInvalid = c.PanicOnInvalid
	return opts
}
