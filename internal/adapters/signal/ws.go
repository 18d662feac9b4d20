package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

// acceptWait bounds how long an upgraded peer waits for Accept.
const acceptWait = 5 * time.Second

type WSOptions struct {
	ReadLimit  int64
	PingPeriod time.Duration
}

// WSChannel carries one JSON message per websocket text frame. Writes go
// through a buffered queue drained by a single write pump.
type WSChannel struct {
	conn *websocket.Conn
	opts WSOptions
	send chan []byte
	done chan struct{}
	// stopped closes when the write pump has returned.
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalingChannel = (*WSChannel)(nil)

func NewWSChannel(conn *websocket.Conn, opts WSOptions) *WSChannel {
	if opts.ReadLimit > 0 {
		conn.SetReadLimit(opts.ReadLimit)
	}
	c := &WSChannel{
		conn:    conn,
		opts:    opts,
		send:    make(chan []byte, 32),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// DialWS connects to a websocket signaling endpoint.
func DialWS(ctx context.Context, url string, opts WSOptions) (*WSChannel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	log.Info().Str("module", "signal").Str("url", url).Msg("signaling connected")
	return NewWSChannel(conn, opts), nil
}

func (c *WSChannel) writePump() {
	defer close(c.stopped)
	var ping <-chan time.Time
	if c.opts.PingPeriod > 0 {
		t := time.NewTicker(c.opts.PingPeriod)
		defer t.Stop()
		ping = t.C
	}
	for {
		select {
		case <-c.done:
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ping:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// TrySend queues raw data without blocking.
func (c *WSChannel) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrChannelClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WSChannel) Send(_ context.Context, msg core.Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return c.TrySend(data)
}

func (c *WSChannel) Receive(ctx context.Context) (core.Message, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		msg, err := Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad json")
			continue
		}
		return msg, nil
	}
}

// Close writes a bye directly, bypassing the queue, and closes the socket.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	<-c.stopped

	if data, err := Encode(core.Bye{}); err == nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
	}
	return c.conn.Close()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSListener hands upgraded websocket connections to Accept.
type WSListener struct {
	opts  WSOptions
	conns chan *WSChannel
}

func NewWSListener(opts WSOptions) *WSListener {
	return &WSListener{opts: opts, conns: make(chan *WSChannel)}
}

// HandleSignal is the gin handler for the signaling route.
func (l *WSListener) HandleSignal(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("remote", c.Request.RemoteAddr).Msg("new WS connection")

	ch := NewWSChannel(ws, l.opts)
	select {
	case l.conns <- ch:
	case <-time.After(acceptWait):
		log.Warn().Str("module", "signal").Msg("no session waiting for signaling peer")
		_ = ch.Close()
	}
}

// Accept waits for the next signaling peer.
func (l *WSListener) Accept(ctx context.Context) (*WSChannel, error) {
	select {
	case ch := <-l.conns:
		return ch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
