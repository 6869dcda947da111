package server

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds every peer write. Broadcasts happen inside a sheet's
// critical section, so a stalled peer must not be able to hold the sheet
// lock indefinitely.
const writeTimeout = 10 * time.Second

// lineConn is one client connection as seen by a session: newline-delimited
// reads and raw writes, independent of the underlying transport.
type lineConn interface {
	// ReadLine blocks until a full line arrives and returns it without the
	// trailing newline.
	ReadLine() (string, error)
	// WriteRaw sends s as-is. Handshake blocks already carry their own
	// newlines.
	WriteRaw(s string) error
	Close() error
	RemoteAddr() string
}

// tcpConn adapts a net.Conn with a buffered line reader.
type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newTCPConn(conn net.Conn) *tcpConn {
	return &tcpConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *tcpConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return trimLine(line), nil
}

func (c *tcpConn) WriteRaw(s string) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := c.conn.Write([]byte(s))
	return err
}

func (c *tcpConn) Close() error { return c.conn.Close() }
func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// wsConn adapts a WebSocket connection: each incoming text frame is one line
// (the frame boundary replaces the newline); each WriteRaw sends its text as
// one frame exactly as given, newlines included. The mutex serializes
// writers, which the websocket package requires.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadLine() (string, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return trimLine(string(data)), nil
	}
}

func (c *wsConn) WriteRaw(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

func (c *wsConn) Close() error { return c.conn.Close() }
func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// trimLine removes every carriage return and newline from line, wherever it
// occurs, matching how the handshake lines are cleaned.
func trimLine(line string) string {
	out := make([]byte, 0, len(line))
	for i := 0; i < len(line); i++ {
		if line[i] == '\n' || line[i] == '\r' {
			continue
		}
		out = append(out, line[i])
	}
	return string(out)
}
