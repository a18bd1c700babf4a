package netkit

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by server operations.
var (
	// ErrServerStarted is returned by Start on a running server.
	ErrServerStarted = errors.New("server already started")
	// ErrUnknownClient is returned when messaging an id not in the connection set.
	ErrUnknownClient = errors.New("unknown client")
	// ErrClientNotConnected is returned when messaging a client whose socket
	// has closed. The client is removed from the connection set.
	ErrClientNotConnected = errors.New("client not connected")
)

// firstClientID is the id given to the first accepted connection.
const firstClientID = 10000

// Accept retry bounds after a failed Accept.
const (
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// Server accepts TCP connections, validates them with the handshake and
// keeps the validated ones in a connection set.
//
// Inbound messages from every connection land in one queue that Update
// drains into the Handler. Dead connections are found lazily, the next
// time a send to them is attempted.
type Server[T MessageType] struct {
	handler Handler[T]
	opts    options
	logger  Logger
	metrics *metrics
	dump    *frameDump
	inbound *Queue[OwnedMessage[T]]

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	group    *errgroup.Group
	conns    map[uint32]*Conn[T]
	pending  map[uint32]*Conn[T] // accepted, handshake not finished
	nextID   uint32
}

// NewServer creates a server that reports events to handler.
func NewServer[T MessageType](handler Handler[T], opt ...Option) *Server[T] {
	opts := newOptions(opt)
	return &Server[T]{
		handler: handler,
		opts:    opts,
		logger:  opts.logger,
		metrics: newMetrics(opts.registerer, "server"),
		dump:    newFrameDump(opts.dump),
		inbound: NewQueue[OwnedMessage[T]](),
		conns:   make(map[uint32]*Conn[T]),
		pending: make(map[uint32]*Conn[T]),
		nextID:  firstClientID,
	}
}

// Start listens on port and begins accepting connections in the background.
// Port 0 picks a free port; see Addr.
func (s *Server[T]) Start(port uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrServerStarted
	}

	addr := net.JoinHostPort(s.opts.listenHost, strconv.Itoa(int(port)))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("listen failed", "addr", addr, "error", err)
		return errors.Wrapf(err, "listen on %s", addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	s.listener = listener
	s.cancel = cancel
	s.group = group

	group.Go(func() error {
		return s.acceptLoop(ctx, listener)
	})

	s.logger.Info("server started", "addr", listener.Addr())
	return nil
}

// Stop closes the listener, disconnects every connection and waits for all
// server goroutines to exit. Safe to call multiple times.
func (s *Server[T]) Stop() {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return
	}

	s.cancel()
	_ = s.listener.Close()
	addr := s.listener.Addr()
	s.listener = nil
	group := s.group

	conns := make([]*Conn[T], 0, len(s.conns)+len(s.pending))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	for _, c := range s.pending {
		conns = append(conns, c)
	}
	s.conns = make(map[uint32]*Conn[T])
	s.pending = make(map[uint32]*Conn[T])
	s.metrics.connectionsActive.Set(0)
	s.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
	_ = group.Wait()
	for _, c := range conns {
		<-c.Done()
	}

	s.logger.Info("server stopped", "addr", addr)
}

// Addr returns the listener's address, or nil when the server is not running.
func (s *Server[T]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts until ctx is done. Accept errors are logged and
// retried with a capped exponential delay.
func (s *Server[T]) acceptLoop(ctx context.Context, listener net.Listener) error {
	boff := &backoff.Backoff{
		Min:    acceptRetryMin,
		Max:    acceptRetryMax,
		Factor: 2,
	}

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			delay := boff.Duration()
			s.logger.Error("accept error", "error", err, "retry_in", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		boff.Reset()
		s.accept(ctx, raw)
	}
}

func (s *Server[T]) accept(ctx context.Context, raw net.Conn) {
	s.logger.Debug("accepted connection", "remote_addr", raw.RemoteAddr())
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	if !s.handler.OnClientConnect(Peer{Addr: raw.RemoteAddr()}) {
		s.metrics.connectionsRejected.Inc()
		s.logger.Info("connection denied", "remote_addr", raw.RemoteAddr())
		_ = raw.Close()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		_ = raw.Close()
		return
	}

	id := s.nextID
	s.nextID++

	c := newConn[T](RoleServer, id, s.inbound, s.opts, s.metrics, s.dump)
	c.attach(raw)
	c.onReady = s.validate
	c.onExit = s.release
	s.pending[id] = c
	c.start(ctx)

	s.metrics.connectionsAccepted.Inc()
	s.logger.Info("connection approved", "conn_id", id, "remote_addr", raw.RemoteAddr())
}

// validate moves a connection that passed the handshake into the
// connection set.
func (s *Server[T]) validate(c *Conn[T]) {
	s.mu.Lock()
	if s.pending[c.id] != c {
		s.mu.Unlock()
		return
	}
	delete(s.pending, c.id)
	s.conns[c.id] = c
	s.metrics.connectionsActive.Inc()
	s.mu.Unlock()

	c.logger.Info("client validated")
	s.handler.OnClientValidated(c.Peer())
}

// release forgets a connection that ended before it was validated.
// Validated connections stay in the set until a send finds them dead.
func (s *Server[T]) release(c *Conn[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[c.id] == c {
		delete(s.pending, c.id)
	}
}

// prune removes dead connections from the set and fires OnClientDisconnect
// for each one actually removed.
func (s *Server[T]) prune(dead ...*Conn[T]) {
	removed := make([]*Conn[T], 0, len(dead))

	s.mu.Lock()
	for _, c := range dead {
		if s.conns[c.id] == c {
			delete(s.conns, c.id)
			s.metrics.connectionsActive.Dec()
			removed = append(removed, c)
		}
	}
	s.mu.Unlock()

	for _, c := range removed {
		c.logger.Info("client disconnected")
		s.handler.OnClientDisconnect(c.Peer())
	}
}

// MessageClient sends msg to the client with the given id. A client whose
// socket has closed is removed and reported through OnClientDisconnect.
func (s *Server[T]) MessageClient(id uint32, msg *Message[T]) error {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()

	if !ok {
		return ErrUnknownClient
	}

	if err := c.Send(msg); err != nil {
		s.prune(c)
		return errors.Wrapf(ErrClientNotConnected, "client %d", id)
	}
	return nil
}

// MessageAllClients sends msg to every connected client except ignore.
// Pass 0 to ignore nobody. Clients found dead during the sweep are removed
// afterwards and reported through OnClientDisconnect.
func (s *Server[T]) MessageAllClients(msg *Message[T], ignore uint32) {
	s.mu.Lock()
	conns := make([]*Conn[T], 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var dead []*Conn[T]
	for _, c := range conns {
		if !c.IsConnected() {
			dead = append(dead, c)
			continue
		}
		if c.id == ignore {
			continue
		}
		if err := c.Send(msg); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) > 0 {
		s.prune(dead...)
	}
}

// Update hands queued inbound messages to the Handler's OnMessage, at most
// maxMessages of them (no limit if maxMessages <= 0). With wait set it first
// blocks until a message is queued or ctx is done. It returns the number of
// messages dispatched.
//
// Update is meant to be called from the application's own loop.
func (s *Server[T]) Update(ctx context.Context, maxMessages int, wait bool) (int, error) {
	if wait {
		if err := s.inbound.WaitContext(ctx); err != nil {
			return 0, err
		}
	}

	n := 0
	for maxMessages <= 0 || n < maxMessages {
		om, ok := s.inbound.PopFront()
		if !ok {
			break
		}
		s.handler.OnMessage(om.Remote, om.Msg)
		n++
	}
	return n, nil
}

// Clients returns the validated connections, ordered by id.
func (s *Server[T]) Clients() []Peer {
	s.mu.Lock()
	peers := make([]Peer, 0, len(s.conns))
	for _, c := range s.conns {
		peers = append(peers, c.Peer())
	}
	s.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}

// ClientCount returns the number of validated connections in the set.
func (s *Server[T]) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
