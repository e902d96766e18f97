package frame

import (
	"bytes"
	"fmt"
	"net"
)

// MessageType identifies the kind of a message.
type MessageType byte

// Message types understood by the co-processor firmware.
const (
	DeviceInfo   MessageType = 0
	ClientConfig MessageType = 6
	Packet       MessageType = 7
	ScanStart    MessageType = 8
	ScanStop     MessageType = 9
	ScanAPCount  MessageType = 10
	ScanAPGet    MessageType = 11
	ScanAPInfo   MessageType = 12
)

func (t MessageType) String() string {
	switch t {
	case DeviceInfo:
		return "DEVICE_INFO"
	case ClientConfig:
		return "CLIENTCONFIG"
	case Packet:
		return "PACKET"
	case ScanStart:
		return "SCAN_START"
	case ScanStop:
		return "SCAN_STOP"
	case ScanAPCount:
		return "SCAN_AP_COUNT"
	case ScanAPGet:
		return "SCAN_AP_GET"
	case ScanAPInfo:
		return "SCAN_AP_INFO"
	}
	return fmt.Sprintf("MessageType(%d)", byte(t))
}

// RequiredProtocolVersion is the protocol version the co-processor firmware
// must report in its device info.
const RequiredProtocolVersion = 11

// MACLen is the length of the hardware address in a device info payload.
const MACLen = 6

// ParseMAC extracts the hardware address from a device info payload.
func ParseMAC(payload []byte) (net.HardwareAddr, error) {
	if len(payload) < MACLen {
		return nil, fmt.Errorf("device info too short: %d", len(payload))
	}
	mac := make(net.HardwareAddr, MACLen)
	copy(mac, payload[:MACLen])
	return mac, nil
}

// SSIDLen is the fixed size of the SSID field in an AP info payload.
const SSIDLen = 32

// APInfoLen is the size of an AP info payload.
const APInfoLen = SSIDLen + 1

// APInfo describes one access point found by a scan.
type APInfo struct {
	SSID             string
	RequiresPassword bool
}

// ParseAPInfo decodes an AP info payload.
func ParseAPInfo(payload []byte) (info APInfo, err error) {
	if len(payload) < APInfoLen {
		return info, fmt.Errorf("AP info too short: %d", len(payload))
	}
	ssid := payload[:SSIDLen]
	if n := bytes.IndexByte(ssid, 0); n >= 0 {
		ssid = ssid[:n]
	}
	info.SSID = string(ssid)
	info.RequiresPassword = payload[SSIDLen] != 0
	return
}

// Bytes encodes the AP info payload.
func (i APInfo) Bytes() []byte {
	b := make([]byte, APInfoLen)
	copy(b[:SSIDLen], i.SSID)
	if i.RequiresPassword {
		b[SSIDLen] = 1
	}
	return b
}

// ClientConfigLen returns the payload size of a client config message.
func ClientConfigLen(ssid, pass string) int {
	return IntronLen + 1 + len(ssid) + 1 + len(pass)
}

// PutClientConfig writes the client config payload: the new intron,
// then the length prefixed SSID and password.
// b must hold ClientConfigLen bytes, ssid and pass at most 255 bytes.
func PutClientConfig(b []byte, intron Intron, ssid, pass string) {
	n := copy(b, intron[:])
	b[n] = byte(len(ssid))
	n++
	n += copy(b[n:], ssid)
	b[n] = byte(len(pass))
	n++
	copy(b[n:], pass)
}
