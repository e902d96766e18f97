// Package websocket carries packets as binary websocket messages.
package websocket

import (
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/espnic/pkg/comm"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter websocket.Conn

// New wraps websocket.Conn. Incoming messages are limited to
// comm.MaxPacketSize.
func New(conn *websocket.Conn) *ReadWriter {
	conn.MaxPayloadBytes = comm.MaxPacketSize
	return (*ReadWriter)(conn)
}

// Dial connects to a websocket server, e.g. ws://host:port/path.
func Dial(url string) (*ReadWriter, error) {
	conn, err := websocket.Dial(url, "", "http://localhost/")
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// ReadPacket implements PacketReader. Oversized messages are skipped.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	for {
		var pkt []byte
		err := websocket.Message.Receive((*websocket.Conn)(p), &pkt)
		if err == websocket.ErrFrameTooLarge {
			glog.Warning("websocket: oversized packet dropped")
			continue
		}
		return pkt, err
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	if len(pkt) > comm.MaxPacketSize {
		return comm.ErrPacketTooLarge
	}
	return websocket.Message.Send((*websocket.Conn)(p), pkt)
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	return (*websocket.Conn)(p).Close()
}

// Handler serves one websocket peer at a time by calling serve with the
// connection. The connection is closed when serve returns.
func Handler(serve func(*ReadWriter) error) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		glog.Infof("websocket peer %s connected", conn.Request().RemoteAddr)
		if err := serve(New(conn)); err != nil {
			glog.Warningf("websocket peer %s: %v", conn.Request().RemoteAddr, err)
		}
	})
}
