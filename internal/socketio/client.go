// Package socketio implements the small slice of the Engine.IO v4 /
// Socket.IO protocol the upstream position feed speaks over a
// websocket: handshake, default-namespace connect, server ping /
// client pong, event emit, and event receive.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Engine.IO packet types (first byte of a websocket text frame).
	packetOpen  = '0'
	packetClose = '1'
	packetPing  = '2'
	packetPong  = '3'
	packetMsg   = '4'

	// Socket.IO packet types (second byte, inside an engine message).
	msgConnect      = '0'
	msgDisconnect   = '1'
	msgEvent        = '2'
	msgConnectError = '4'

	defaultWriteTimeout = 10 * time.Second
)

// ErrClosed is returned from NextEvent after the server closes the
// session.
var ErrClosed = errors.New("socketio: session closed")

type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// Client is one live Socket.IO session.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	// Advertised by the server during the handshake; bounds the read
	// deadline so a dead upstream surfaces as an error instead of a
	// wedged reader.
	pingInterval time.Duration
	pingTimeout  time.Duration
}

// Dial connects to a Socket.IO server, performs the Engine.IO
// handshake and joins the default namespace.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	wsURL, err := websocketURL(rawURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("socketio: dial %s: %v", wsURL, err)
	}

	c := &Client{
		conn:         conn,
		pingInterval: 25 * time.Second,
		pingTimeout:  20 * time.Second,
	}

	if err := c.open(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// open consumes the handshake frame and joins the default namespace.
func (c *Client) open() error {
	data, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("socketio: handshake read: %v", err)
	}
	if len(data) == 0 || data[0] != packetOpen {
		return fmt.Errorf("socketio: unexpected handshake packet %q", truncate(data))
	}

	var hs handshake
	if err := json.Unmarshal(data[1:], &hs); err != nil {
		return fmt.Errorf("socketio: handshake decode: %v", err)
	}
	if hs.PingInterval > 0 {
		c.pingInterval = time.Duration(hs.PingInterval) * time.Millisecond
	}
	if hs.PingTimeout > 0 {
		c.pingTimeout = time.Duration(hs.PingTimeout) * time.Millisecond
	}

	if err := c.writeFrame([]byte{packetMsg, msgConnect}); err != nil {
		return fmt.Errorf("socketio: namespace connect: %v", err)
	}

	// The server acks with "40{...}" or rejects with "44{...}".
	for {
		data, err := c.readFrame()
		if err != nil {
			return fmt.Errorf("socketio: namespace ack: %v", err)
		}
		switch {
		case len(data) >= 2 && data[0] == packetMsg && data[1] == msgConnect:
			return nil
		case len(data) >= 2 && data[0] == packetMsg && data[1] == msgConnectError:
			return fmt.Errorf("socketio: namespace rejected: %s", truncate(data[2:]))
		case len(data) >= 1 && data[0] == packetPing:
			if err := c.writeFrame([]byte{packetPong}); err != nil {
				return err
			}
		default:
			// Ignore anything else before the ack
		}
	}
}

// Emit sends one event with a single JSON payload.
func (c *Client) Emit(event string, payload interface{}) error {
	args, err := json.Marshal([]interface{}{event, payload})
	if err != nil {
		return fmt.Errorf("socketio: encode %s: %v", event, err)
	}
	frame := append([]byte{packetMsg, msgEvent}, args...)
	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("socketio: emit %s: %v", event, err)
	}
	return nil
}

// NextEvent blocks until the server delivers an event, answering pings
// along the way. It returns the event name and its raw JSON arguments.
func (c *Client) NextEvent() (string, []json.RawMessage, error) {
	for {
		data, err := c.readFrame()
		if err != nil {
			return "", nil, err
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case packetPing:
			if err := c.writeFrame([]byte{packetPong}); err != nil {
				return "", nil, err
			}
		case packetClose:
			return "", nil, ErrClosed
		case packetMsg:
			if len(data) < 2 {
				continue
			}
			switch data[1] {
			case msgEvent:
				event, args, err := decodeEvent(data[2:])
				if err != nil {
					// Malformed event frame; skip it
					continue
				}
				return event, args, nil
			case msgDisconnect:
				return "", nil, ErrClosed
			}
		}
	}
}

// Close tears down the websocket.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readFrame() ([]byte, error) {
	deadline := time.Now().Add(c.pingInterval + c.pingTimeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *Client) writeFrame(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// decodeEvent parses the JSON array of a Socket.IO event packet:
// ["event-name", arg, ...].
func decodeEvent(data []byte) (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty event packet")
	}
	var event string
	if err := json.Unmarshal(parts[0], &event); err != nil {
		return "", nil, err
	}
	return event, parts[1:], nil
}

// websocketURL rewrites an http(s) feed URL into the Engine.IO
// websocket endpoint.
func websocketURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("socketio: invalid url %q: %v", rawURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if !strings.Contains(u.Path, "/socket.io") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(data []byte) string {
	const max = 120
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
