// Package status reports the bridge health as protobuf Struct snapshots.
package status

import (
	"net"

	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/espnic/pkg/espif"
	"github.com/robotalks/espnic/pkg/espif/mode"
)

// Source is the bridge state being reported.
type Source interface {
	Mode() mode.Mode
	FwState() mode.FwState
	LinkState() mode.LinkState
	LinkIsUp() bool
	ScanIsRunning() bool
	ScanAPCount() int
	Stats() espif.Stats
}

// AddrSource reports the hardware address, usually the network interface.
type AddrSource interface {
	HardwareAddr() net.HardwareAddr
}

func stringValue(s string) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StringValue{StringValue: s}}
}

func numberValue(n uint64) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(n)}}
}

func boolValue(b bool) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_BoolValue{BoolValue: b}}
}

func structValue(fields map[string]*structpb.Value) *structpb.Value {
	return &structpb.Value{Kind: &structpb.Value_StructValue{StructValue: &structpb.Struct{Fields: fields}}}
}

// Snapshot captures the current state of src. addr may be nil.
func Snapshot(device string, src Source, addr AddrSource) *structpb.Struct {
	stats := src.Stats()
	fields := map[string]*structpb.Value{
		"device":     stringValue(device),
		"mode":       stringValue(src.Mode().String()),
		"fw_state":   stringValue(src.FwState().String()),
		"link_state": stringValue(src.LinkState().String()),
		"link_up":    boolValue(src.LinkIsUp()),
		"scan": structValue(map[string]*structpb.Value{
			"running":  boolValue(src.ScanIsRunning()),
			"ap_count": numberValue(uint64(src.ScanAPCount())),
		}),
		"stats": structValue(map[string]*structpb.Value{
			"bytes_in":        numberValue(stats.BytesIn),
			"bytes_out":       numberValue(stats.BytesOut),
			"packets_in":      numberValue(stats.PacketsIn),
			"packets_out":     numberValue(stats.PacketsOut),
			"input_drops":     numberValue(stats.InputDrops),
			"ticks":           numberValue(stats.Ticks),
			"alive_ticks":     numberValue(stats.AliveTicks),
			"messages":        numberValue(stats.Parser.Messages),
			"checksum_errors": numberValue(stats.Parser.ChecksumErrors),
			"alloc_errors":    numberValue(stats.Parser.AllocErrors),
			"oversized":       numberValue(stats.Parser.Oversized),
			"malformed":       numberValue(stats.Parser.Malformed),
		}),
	}
	if addr != nil {
		if mac := addr.HardwareAddr(); len(mac) > 0 {
			fields["mac"] = stringValue(mac.String())
		}
	}
	return &structpb.Struct{Fields: fields}
}
