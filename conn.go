// Package netkit exchanges typed binary messages over persistent TCP
// connections.
//
// A message is a header carrying an application-defined type code and the
// body length, followed by a body of packed fixed-size values that are read
// back in reverse order of writing. Every connection starts with a short
// challenge/response handshake, then runs a read pump that feeds a shared
// inbound queue and a write pump that drains its own outbound queue in
// order. Server and Client are thin engines over these connections.
package netkit

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/jackc/pgx/chunkreader"
	"github.com/pkg/errors"
	"github.com/someonegg/gox/syncx"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when sending on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrMessageTooLarge is returned when a peer announces a body above the configured limit.
	ErrMessageTooLarge = errors.New("message too large")
)

// Role tells which side of the link a connection sits on.
type Role int

const (
	// RoleServer is a connection accepted by a Server.
	RoleServer Role = iota
	// RoleClient is the connection a Client dials.
	RoleClient
)

// String returns "server" or "client".
func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// State is the lifecycle stage of a connection.
type State int32

const (
	// StateIdle is a connection with no socket yet.
	StateIdle State = iota
	// StateConnecting is a client connection dialing the server.
	StateConnecting
	// StateHandshake is a connection exchanging the challenge and response.
	StateHandshake
	// StateReady is a validated connection moving frames.
	StateReady
	// StateClosed is a connection whose socket has been closed.
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one TCP link to a peer.
//
// Inbound frames are pushed onto a queue owned by the engine that created
// the connection; outbound frames go through the connection's own queue and
// are written in Send order. The socket is only ever closed by the
// connection's own goroutines.
type Conn[T MessageType] struct {
	id      uint32
	role    Role
	rawConn net.Conn
	reader  *chunkreader.ChunkReader
	logger  Logger
	opts    options
	metrics *metrics
	dump    *frameDump

	state    atomic.Int32
	closed   atomic.Bool
	outbound *Queue[*Message[T]]
	inbound  *Queue[OwnedMessage[T]]
	kick     chan struct{}

	// onReady runs on the reader goroutine once the handshake succeeded,
	// before the first frame is read.
	onReady func(*Conn[T])
	// onExit runs once the read and write pumps have stopped.
	onExit func(*Conn[T])

	cancel context.CancelFunc
	done   syncx.DoneChan
	err    error
}

func newConn[T MessageType](role Role, id uint32, inbound *Queue[OwnedMessage[T]], opts options, m *metrics, d *frameDump) *Conn[T] {
	return &Conn[T]{
		id:       id,
		role:     role,
		logger:   opts.logger,
		opts:     opts,
		metrics:  m,
		dump:     d,
		outbound: NewQueue[*Message[T]](),
		inbound:  inbound,
		kick:     make(chan struct{}, 1),
		done:     syncx.NewDoneChan(),
	}
}

// attach binds the connection to an established socket.
func (c *Conn[T]) attach(raw net.Conn) {
	c.rawConn = raw
	c.reader = chunkreader.NewChunkReader(raw)
	c.logger = withFields(c.opts.logger, "conn_id", c.id, "role", c.role.String(), "addr", raw.RemoteAddr().String())
	c.setState(StateHandshake)
}

// connectToServer dials addrs in order and keeps the first socket that connects.
func (c *Conn[T]) connectToServer(ctx context.Context, addrs []string, port uint16) error {
	c.setState(StateConnecting)

	var (
		d       net.Dialer
		lastErr error
	)
	for _, addr := range addrs {
		raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
		if err != nil {
			lastErr = err
			continue
		}
		if tcp, ok := raw.(*net.TCPConn); ok {
			_ = tcp.SetNoDelay(true)
		}
		c.attach(raw)
		return nil
	}

	c.setState(StateClosed)
	return lastErr
}

// start launches the connection goroutines. The handshake runs first.
func (c *Conn[T]) start(parent context.Context) {
	var ctx context.Context
	ctx, c.cancel = context.WithCancel(parent)
	go c.run(ctx)
}

func (c *Conn[T]) run(ctx context.Context) {
	defer c.done.SetDone()

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	group.Go(func() error {
		if err := c.handshake(); err != nil {
			c.logger.Debug("handshake failed", "error", err)
			return err
		}

		if !c.state.CompareAndSwap(int32(StateHandshake), int32(StateReady)) {
			return ErrConnectionClosed
		}
		if c.onReady != nil {
			c.onReady(c)
		}

		group.Go(func() error {
			return c.writeLoop(child)
		})
		return c.readLoop()
	})

	err := group.Wait()
	c.err = err
	if c.onExit != nil {
		c.onExit(c)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed")
	}
}

// readLoop reads frames until the socket fails.
func (c *Conn[T]) readLoop() error {
	headerSize := HeaderSize[T]()

	for {
		buf, err := c.reader.Next(headerSize)
		if err != nil {
			c.logger.Debug("read header failed", "error", err)
			return errors.Wrap(err, "read header")
		}

		msg := &Message[T]{Header: decodeHeader[T](buf)}
		if int64(msg.Header.Size) > int64(c.opts.maxBodySize) {
			c.logger.Debug("message too large", "size", msg.Header.Size, "limit", c.opts.maxBodySize)
			return errors.Wrapf(ErrMessageTooLarge, "body of %d bytes", msg.Header.Size)
		}

		if msg.Header.Size > 0 {
			body, err := c.reader.Next(int(msg.Header.Size))
			if err != nil {
				c.logger.Debug("read body failed", "error", err)
				return errors.Wrap(err, "read body")
			}
			// the chunk reader reuses its buffer
			msg.body = append([]byte(nil), body...)
		}

		c.metrics.messagesReceived.Inc()
		c.metrics.bytesReceived.Add(float64(headerSize + len(msg.body)))
		c.dump.record(true, c.id, msg.Header.Type, msg.Header.Size)

		c.inbound.PushBack(OwnedMessage[T]{Remote: c.owner(), Msg: msg})
	}
}

// writeLoop drains the outbound queue each time Send signals it.
func (c *Conn[T]) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.kick:
		}

		for {
			msg, ok := c.outbound.Front()
			if !ok {
				break
			}
			if err := c.writeMessage(msg); err != nil {
				return err
			}
			c.outbound.PopFront()
		}
	}
}

func (c *Conn[T]) writeMessage(msg *Message[T]) error {
	header := msg.Header.encode()
	if _, err := c.rawConn.Write(header); err != nil {
		c.logger.Debug("write header failed", "error", err)
		return errors.Wrap(err, "write header")
	}

	if len(msg.body) > 0 {
		if _, err := c.rawConn.Write(msg.body); err != nil {
			c.logger.Debug("write body failed", "error", err)
			return errors.Wrap(err, "write body")
		}
	}

	c.metrics.messagesSent.Inc()
	c.metrics.bytesSent.Add(float64(len(header) + len(msg.body)))
	c.dump.record(false, c.id, msg.Header.Type, msg.Header.Size)
	return nil
}

// closeConn closes the socket and abandons unsent messages.
func (c *Conn[T]) closeConn() {
	if c.closed.Swap(true) {
		return
	}
	c.setState(StateClosed)
	if c.rawConn != nil {
		_ = c.rawConn.Close()
	}
	c.outbound.Clear()
}

// Send queues a copy of msg for writing. Messages sent on one connection
// reach the wire in the order Send was called.
func (c *Conn[T]) Send(msg *Message[T]) error {
	if !c.IsConnected() {
		return ErrConnectionClosed
	}

	c.outbound.PushBack(msg.Clone())
	if c.closed.Load() {
		// closeConn may have cleared the queue before the push
		c.outbound.Clear()
		return ErrConnectionClosed
	}

	select {
	case c.kick <- struct{}{}:
	default:
	}
	return nil
}

// Disconnect asks the connection to close its socket. It returns without
// waiting; use Done to wait for the connection goroutines to exit.
func (c *Conn[T]) Disconnect() {
	if c.IsConnected() && c.cancel != nil {
		c.cancel()
	}
}

// IsConnected reports whether the socket is still open. A silently
// dropped peer is only noticed once a read or write fails.
func (c *Conn[T]) IsConnected() bool {
	return c.rawConn != nil && !c.closed.Load()
}

// Done returns a channel signalled once every connection goroutine has exited.
func (c *Conn[T]) Done() syncx.DoneChanR {
	return c.done.R()
}

// Err returns the error that ended the connection. Only valid after Done.
func (c *Conn[T]) Err() error {
	return c.err
}

// ID returns the id assigned by the server, or 0 on the client side.
func (c *Conn[T]) ID() uint32 {
	return c.id
}

// Role returns the side of the link the connection sits on.
func (c *Conn[T]) Role() Role {
	return c.role
}

// State returns the current lifecycle stage.
func (c *Conn[T]) State() State {
	return State(c.state.Load())
}

// RemoteAddr returns the peer address, or nil before the socket is attached.
func (c *Conn[T]) RemoteAddr() net.Addr {
	if c.rawConn == nil {
		return nil
	}
	return c.rawConn.RemoteAddr()
}

// Peer returns a non-owning handle to the connection.
func (c *Conn[T]) Peer() Peer {
	return Peer{ID: c.id, Addr: c.RemoteAddr()}
}

// owner is the sender recorded on inbound messages: the connection itself
// on the server side, nobody on the client side.
func (c *Conn[T]) owner() Peer {
	if c.role == RoleServer {
		return c.Peer()
	}
	return Peer{}
}

func (c *Conn[T]) setState(s State) {
	c.state.Store(int32(s))
}
