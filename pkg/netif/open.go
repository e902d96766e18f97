package netif

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/robotalks/espnic/pkg/comm"
	"github.com/robotalks/espnic/pkg/comm/mqtt"
	"github.com/robotalks/espnic/pkg/comm/stream"
	"github.com/robotalks/espnic/pkg/comm/websocket"
)

type stdio struct {
	io.Reader
	io.Writer
}

type mqttConn struct {
	*mqtt.ReadWriter
}

func (c *mqttConn) Close() error {
	c.ReadWriter.Close()
	return c.Queue.Close()
}

// Open opens the packet channel specified by URL:
//
//	stdio:              length prefixed frames on stdin/stdout
//	ws://host/path      binary websocket messages
//	mqtt://host/prefix  MQTT topics <prefix><device>/tx and <prefix><device>/rx
//
// device names the bridge on shared channels and is also the MQTT client ID.
func Open(channelURL, device string) (comm.PacketReadWriter, error) {
	u, err := url.Parse(channelURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "stdio", "":
		if u.Scheme == "" && u.Path != "-" {
			break
		}
		return stream.New(&stdio{Reader: os.Stdin, Writer: os.Stdout}), nil
	case "ws", "wss":
		conn, err := websocket.Dial(channelURL)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case "mqtt", "tcp", "ssl":
		q, err := mqtt.NewQueueFromURL(channelURL, device)
		if err != nil {
			return nil, err
		}
		if err := q.ConnectAndWait(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", u.Host, err)
		}
		return &mqttConn{ReadWriter: mqtt.NewPacketReadWriter(q).ForDevice(device)}, nil
	}
	return nil, fmt.Errorf("unsupported packet channel %q", channelURL)
}
