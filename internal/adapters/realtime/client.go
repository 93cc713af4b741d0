package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/tapbattle/internal/session"
	"github.com/okian/tapbattle/pkg/errs"
	"github.com/okian/tapbattle/pkg/logger"
	"github.com/okian/tapbattle/pkg/metrics"
)

// Connection timing constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection. Its read pump decodes frames and
// dispatches them in arrival order; its write pump owns every write.
type Client struct {
	id    string
	gw    *Gateway
	conn  *websocket.Conn
	send  chan []byte
	guard *Guard

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	playerID string
	sess     *session.Session
}

func newClient(gw *Gateway, id string, conn *websocket.Conn) *Client {
	c := &Client{
		id:     id,
		gw:     gw,
		conn:   conn,
		send:   make(chan []byte, gw.sendBuffer),
		closed: make(chan struct{}),
	}
	c.guard = NewGuard(gw.busyTimeout, func() {
		gw.log.Warn(gw.ctx, "busy guard reset by watchdog",
			logger.ConnID(c.id),
			logger.PlayerID(c.PlayerID()))
	})
	return c
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// PlayerID returns the player bound by init, or "".
func (c *Client) PlayerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *Client) session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) bind(playerID string, s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID, c.sess = playerID, s
}

// Notify queues an event for the write pump. A full buffer drops the event.
func (c *Client) Notify(action string, data any) {
	frame, err := encode(action, data)
	if err != nil {
		c.gw.log.Error(c.gw.ctx, "encode outbound event failed",
			logger.String("action", action), logger.Error(err))
		return
	}
	select {
	case <-c.closed:
		return
	default:
	}
	select {
	case c.send <- frame:
		metrics.RecordWSMessage("out", action)
	default:
		metrics.RecordWSMessage("dropped", action)
		c.gw.log.Warn(c.gw.ctx, "dropping event for slow consumer",
			logger.ConnID(c.id),
			logger.String("action", action))
	}
}

func (c *Client) notifyError(err error) {
	c.Notify(ActionError, errorPayload{Message: messageOf(err)})
}

func encode(action string, data any) ([]byte, error) {
	env := Envelope{Action: action}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (c *Client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.gw.log.Debug(ctx, "websocket closed unexpectedly",
					logger.ConnID(c.id), logger.Error(err))
			}
			return
		}
		in := inbound{ReceivedAt: c.gw.now()}
		if err := json.Unmarshal(payload, &in.Envelope); err != nil || in.Action == "" {
			c.notifyError(errs.WrapKind("realtime.read", errs.ErrValidation, ErrBadPayload))
			continue
		}
		metrics.RecordWSMessage("in", in.Action)
		c.gw.dispatch(ctx, c, in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close tears the connection down once and runs disconnect cleanup.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.guard.Stop()
		_ = c.conn.Close()
		c.gw.disconnect(c)
	})
}
