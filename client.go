package netkit

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Errors returned by client operations.
var (
	// ErrResolve is returned when the server host cannot be resolved.
	ErrResolve = errors.New("resolve server address")
	// ErrConnect is returned when no resolved address accepted the connection.
	ErrConnect = errors.New("connect to server")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("client already connected")
	// ErrNotConnected is returned by Send when there is no live connection.
	ErrNotConnected = errors.New("client not connected")
)

// Client owns a single connection to a server.
//
// Messages from the server are queued on Incoming; the application polls
// or blocks on that queue. There is no automatic reconnection.
type Client[T MessageType] struct {
	opts       options
	logger     Logger
	metrics    *metrics
	dump       *frameDump
	inbound    *Queue[OwnedMessage[T]]
	lookupHost func(ctx context.Context, host string) ([]string, error)

	mu   sync.Mutex
	conn *Conn[T]
}

// NewClient creates an unconnected client.
func NewClient[T MessageType](opt ...Option) *Client[T] {
	opts := newOptions(opt)
	return &Client[T]{
		opts:       opts,
		logger:     opts.logger,
		metrics:    newMetrics(opts.registerer, "client"),
		dump:       newFrameDump(opts.dump),
		inbound:    NewQueue[OwnedMessage[T]](),
		lookupHost: net.DefaultResolver.LookupHost,
	}
}

// Connect resolves host, dials the server at port and starts the
// connection in the background. The handshake completes asynchronously.
// Resolving and dialing happen without holding the client lock.
func (c *Client[T]) Connect(ctx context.Context, host string, port uint16) error {
	if c.IsConnected() {
		return ErrAlreadyConnected
	}

	addrs, err := c.lookupHost(ctx, host)
	if err != nil {
		c.logger.Error("resolve failed", "host", host, "error", err)
		return errors.Wrapf(ErrResolve, "%s: %v", host, err)
	}

	conn := newConn[T](RoleClient, 0, c.inbound, c.opts, c.metrics, c.dump)
	if err = conn.connectToServer(ctx, addrs, port); err != nil {
		c.logger.Error("connect failed", "host", host, "port", port, "error", err)
		return errors.Wrapf(ErrConnect, "%s:%d: %v", host, port, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if c.conn.IsConnected() {
			// lost a race with another Connect; conn was never started
			conn.closeConn()
			return ErrAlreadyConnected
		}
		c.release()
	}

	conn.start(context.Background())
	c.conn = conn
	c.metrics.connectionsActive.Set(1)
	c.logger.Info("connected", "addr", conn.RemoteAddr())
	return nil
}

// Disconnect closes the connection and waits for its goroutines to exit.
// Safe to call when not connected.
func (c *Client[T]) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	c.release()
	c.logger.Info("disconnected")
}

// release stops the current connection and forgets it. c.mu must be held.
func (c *Client[T]) release() {
	c.conn.Disconnect()
	<-c.conn.Done()
	c.conn = nil
	c.metrics.connectionsActive.Set(0)
}

// IsConnected reports whether the connection's socket is open.
func (c *Client[T]) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Send queues msg for the server. It does nothing and returns
// ErrNotConnected when the client is not connected.
func (c *Client[T]) Send(msg *Message[T]) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	return conn.Send(msg)
}

// Incoming returns the queue of messages received from the server.
func (c *Client[T]) Incoming() *Queue[OwnedMessage[T]] {
	return c.inbound
}
