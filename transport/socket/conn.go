package socket

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/libp2p/go-msgio"
	"github.com/pkg/errors"
)

// MaxFrameSize is the largest frame accepted from the engine
const MaxFrameSize = 4 << 20

// FrameConn is a message framed connection to the engine
type FrameConn interface {
	// WriteFrame writes a single frame. It fails if the frame cannot
	// be written before the deadline
	WriteFrame(p []byte, deadline time.Time) error

	// ReadFrame blocks until a complete frame is received
	ReadFrame() ([]byte, error)

	// Close closes the connection, unblocking any pending reads
	Close() error
}

// Dialer establishes framed connections
type Dialer interface {
	Dial(ctx context.Context, u *url.URL) (FrameConn, error)
}

// DialerFunc allows functions to be used as Dialer
type DialerFunc func(ctx context.Context, u *url.URL) (FrameConn, error)

// Dial implementation of Dialer for DialerFunc
func (f DialerFunc) Dial(ctx context.Context, u *url.URL) (FrameConn, error) {
	return f(ctx, u)
}

// NewDialer returns the dialer for the URL scheme
func NewDialer(u *url.URL, timeout time.Duration) (Dialer, error) {
	switch u.Scheme {
	case "tcp", "ipc":
		return &streamDialer{maxFrameSize: MaxFrameSize}, nil
	case "ws", "wss":
		return &websocketDialer{
			dialer:       &websocket.Dialer{HandshakeTimeout: timeout},
			maxFrameSize: MaxFrameSize,
		}, nil
	default:
		return nil, errors.Errorf("unsupported socket scheme %q", u.Scheme)
	}
}

// streamDialer dials stream oriented connections where frames
// are delimited with a varint length prefix
type streamDialer struct {
	dialer       net.Dialer
	maxFrameSize int
}

func (d *streamDialer) Dial(ctx context.Context, u *url.URL) (FrameConn, error) {
	network, address := networkAddress(u)

	conn, err := d.dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}

	return newStreamConn(conn, d.maxFrameSize), nil
}

func networkAddress(u *url.URL) (string, string) {
	if u.Scheme == "ipc" {
		// ipc:///var/run/engine.sock has an empty host whereas a
		// relative path like ipc://engine.sock ends up in the host
		return "unix", u.Host + u.Path
	}

	return "tcp", u.Host
}

type streamConn struct {
	conn   net.Conn
	reader msgio.ReadCloser
	writer msgio.WriteCloser
	wmu    sync.Mutex
}

func newStreamConn(conn net.Conn, maxFrameSize int) *streamConn {
	return &streamConn{
		conn:   conn,
		reader: msgio.NewVarintReaderSize(conn, maxFrameSize),
		writer: msgio.NewVarintWriter(conn),
	}
}

func (c *streamConn) WriteFrame(p []byte, deadline time.Time) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return c.writer.WriteMsg(p)
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	msg, err := c.reader.ReadMsg()
	if err != nil {
		return nil, err
	}

	p := make([]byte, len(msg))
	copy(p, msg)
	c.reader.ReleaseMsg(msg)
	return p, nil
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

// websocketDialer dials websocket connections. Websocket messages
// are already framed so no length prefix is added
type websocketDialer struct {
	dialer       *websocket.Dialer
	maxFrameSize int64
}

func (d *websocketDialer) Dial(ctx context.Context, u *url.URL) (FrameConn, error) {
	conn, res, err := d.dialer.DialContext(ctx, u.String(), nil)
	if res != nil && res.Body != nil {
		_ = res.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	conn.SetReadLimit(d.maxFrameSize)
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *websocketConn) WriteFrame(p []byte, deadline time.Time) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}

	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

func (c *websocketConn) ReadFrame() ([]byte, error) {
	for {
		messageType, p, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}

		// control and text messages are not part of the protocol
		if messageType == websocket.BinaryMessage {
			return p, nil
		}
	}
}

func (c *websocketConn) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()

	return c.conn.Close()
}
