package netkit

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default configuration values.
const (
	// defaultMaxBodySize is the default maximum body size of a single message (1MB).
	defaultMaxBodySize = 1024 * 1024
)

// options holds the configuration shared by clients, servers and their connections.
type options struct {
	logger     Logger
	registerer prometheus.Registerer
	dump       io.Writer

	listenHost       string
	maxBodySize      int
	handshakeTimeout time.Duration // zero means no deadline
}

// Option configures a Client or a Server.
type Option func(*options)

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.maxBodySize <= 0 {
		opts.maxBodySize = defaultMaxBodySize
	}

	if opts.handshakeTimeout < 0 {
		opts.handshakeTimeout = 0
	}
}

func newOptions(opt []Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that registers the engine's Prometheus
// collectors with reg. Without it the collectors are kept unregistered.
func MetricsOption(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// MaxBodySizeOption returns an Option that limits the body size of inbound
// messages. A peer announcing a larger body is disconnected.
func MaxBodySizeOption(size int) Option {
	return func(o *options) {
		o.maxBodySize = size
	}
}

// HandshakeTimeoutOption returns an Option that bounds the time a new
// connection may spend in the handshake. The default is no limit.
func HandshakeTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = timeout
	}
}

// ListenAddrOption returns an Option that sets the host or IP a Server
// binds to. The default is every interface.
func ListenAddrOption(host string) Option {
	return func(o *options) {
		o.listenHost = host
	}
}

// DumpOption returns an Option that writes a line for every frame read or
// written to w. Intended for debugging.
func DumpOption(w io.Writer) Option {
	return func(o *options) {
		o.dump = w
	}
}
