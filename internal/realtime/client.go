package realtime

import (
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newConnID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Client is one authenticated websocket connection. The rooms set is owned by
// the Hub and only touched under its lock.
type Client struct {
	id       string
	userID   int64
	username string

	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	rooms   map[int64]struct{}
}

func newClient(conn *websocket.Conn, userID int64, username string, opts Options) *Client {
	return &Client{
		id:       newConnID(),
		userID:   userID,
		username: username,
		conn:     conn,
		send:     make(chan []byte, opts.SendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		rooms:    make(map[int64]struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// writePump drains the send buffer onto the socket and keeps the peer alive
// with pings. It owns all writes to the connection.
func (c *Client) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames until the connection fails and hands each one to
// handle. It returns when the peer goes away or stops answering pings.
func (c *Client) readPump(opts Options, handle func(Frame)) {
	c.conn.SetReadLimit(opts.MaxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.Debug("websocket closed unexpectedly", "conn_id", c.id, "error", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("ignoring malformed frame", "conn_id", c.id, "error", err)
			continue
		}
		handle(f)
	}
}
