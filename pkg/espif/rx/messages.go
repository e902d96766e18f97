package rx

import (
	"net"

	"github.com/robotalks/espnic/pkg/espif/frame"
	"github.com/robotalks/espnic/pkg/espif/pbuf"
)

// Message is a checksum-valid message received from the co-processor.
// The set of implementations is closed: DeviceInfo, APCount, APInfo,
// Packet and Invalid.
type Message interface {
	rxMessage()
}

// DeviceInfo is sent by the co-processor once its firmware is up.
type DeviceInfo struct {
	Version byte
	MAC     net.HardwareAddr
}

// APCount reports the number of access points found by a scan.
type APCount struct {
	Count byte
}

// APInfo is the reply to a SCAN_AP_GET request.
type APInfo struct {
	Index byte
	Info  frame.APInfo
}

// Packet carries a network frame. The handler owns Buffer and must either
// hand it over or release it.
type Packet struct {
	Up     bool
	Buffer *pbuf.Buffer
}

// Invalid is a well-formed message of a type the host does not accept.
type Invalid struct {
	Header frame.Header
}

func (DeviceInfo) rxMessage() {}
func (APCount) rxMessage()    {}
func (APInfo) rxMessage()     {}
func (Packet) rxMessage()     {}
func (Invalid) rxMessage()    {}

// Handler is called for every received message.
type Handler interface {
	HandleMessage(Message)
}

// HandleMessageFunc is func type of Handler.
type HandleMessageFunc func(Message)

// HandleMessage implements Handler.
func (f HandleMessageFunc) HandleMessage(msg Message) {
	f(msg)
}
