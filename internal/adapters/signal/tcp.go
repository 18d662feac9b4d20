package signal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/bounce/internal/core"
)

const dialRetry = 500 * time.Millisecond

// TCPChannel carries newline-delimited JSON messages over one TCP
// connection. The connection is made lazily: if the first operation is a
// Send the channel listens on addr and accepts one peer, otherwise it dials
// addr.
type TCPChannel struct {
	addr string

	connect sync.Mutex
	done    chan struct{}

	mu     sync.Mutex
	conn   net.Conn
	rd     *bufio.Reader
	closed bool

	wmu sync.Mutex
}

var _ core.SignalingChannel = (*TCPChannel)(nil)

func NewTCPChannel(addr string) *TCPChannel {
	return &TCPChannel{addr: addr, done: make(chan struct{})}
}

func (c *TCPChannel) establish(ctx context.Context, listen bool) (net.Conn, *bufio.Reader, error) {
	c.connect.Lock()
	defer c.connect.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil, ErrChannelClosed
	}
	if c.conn != nil {
		conn, rd := c.conn, c.rd
		c.mu.Unlock()
		return conn, rd, nil
	}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		conn net.Conn
		err  error
	)
	if listen {
		conn, err = c.accept(ctx)
	} else {
		conn, err = c.dial(ctx)
	}
	if err != nil {
		select {
		case <-c.done:
			return nil, nil, ErrChannelClosed
		default:
		}
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = conn.Close()
		return nil, nil, ErrChannelClosed
	}
	c.conn = conn
	c.rd = bufio.NewReader(conn)
	log.Info().Str("module", "signal").Str("remote", conn.RemoteAddr().String()).Bool("listen", listen).Msg("signaling connected")
	return c.conn, c.rd, nil
}

func (c *TCPChannel) accept(ctx context.Context) (net.Conn, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", c.addr, err)
	}
	defer ln.Close()
	log.Info().Str("module", "signal").Str("addr", ln.Addr().String()).Msg("waiting for signaling peer")

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
	return conn, nil
}

// dial retries until the listening side is up or ctx ends.
func (c *TCPChannel) dial(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", c.addr)
		if err == nil {
			return conn, nil
		}
		log.Debug().Err(err).Str("module", "signal").Str("addr", c.addr).Msg("dial failed, retrying")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetry):
		}
	}
}

func (c *TCPChannel) Receive(ctx context.Context) (core.Message, error) {
	conn, rd, err := c.establish(ctx, false)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		line, err := rd.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		msg, err := Decode(line)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("bad json")
			continue
		}
		return msg, nil
	}
}

func (c *TCPChannel) Send(ctx context.Context, msg core.Message) error {
	conn, _, err := c.establish(ctx, true)
	if err != nil {
		return err
	}
	return c.write(conn, msg)
}

func (c *TCPChannel) write(conn net.Conn, msg core.Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	_, err = conn.Write(append(data, '\n'))
	return err
}

// Close sends a bye to a connected peer and releases the connection.
func (c *TCPChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := c.write(conn, core.Bye{}); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug().Err(err).Str("module", "signal").Msg("send bye")
	}
	return conn.Close()
}
