package netkit

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLoggerOption(t *testing.T) {
	logger := &mockLogger{}
	opt := LoggerOption(logger)

	var opts options
	opt(&opts)

	if opts.logger != logger {
		t.Error("logger not set correctly")
	}
}

func TestMetricsOption(t *testing.T) {
	reg := prometheus.NewRegistry()
	opt := MetricsOption(reg)

	var opts options
	opt(&opts)

	if opts.registerer != reg {
		t.Error("registerer not set correctly")
	}
}

func TestMaxBodySizeOption(t *testing.T) {
	opt := MaxBodySizeOption(4096)

	var opts options
	opt(&opts)

	if opts.maxBodySize != 4096 {
		t.Errorf("maxBodySize = %d, want 4096", opts.maxBodySize)
	}
}

func TestHandshakeTimeoutOption(t *testing.T) {
	timeout := 3 * time.Second
	opt := HandshakeTimeoutOption(timeout)

	var opts options
	opt(&opts)

	if opts.handshakeTimeout != timeout {
		t.Errorf("handshakeTimeout = %v, want %v", opts.handshakeTimeout, timeout)
	}
}

func TestListenAddrOption(t *testing.T) {
	opt := ListenAddrOption("127.0.0.1")

	var opts options
	opt(&opts)

	if opts.listenHost != "127.0.0.1" {
		t.Errorf("listenHost = %q, want 127.0.0.1", opts.listenHost)
	}
}

func TestDumpOption(t *testing.T) {
	var buf bytes.Buffer
	opt := DumpOption(&buf)

	var opts options
	opt(&opts)

	if opts.dump != &buf {
		t.Error("dump writer not set correctly")
	}
}

func TestCheckOptions_Defaults(t *testing.T) {
	opts := options{handshakeTimeout: -time.Second}
	checkOptions(&opts)

	if opts.logger == nil {
		t.Error("logger should default to slog")
	}
	if opts.maxBodySize != defaultMaxBodySize {
		t.Errorf("maxBodySize = %d, want %d", opts.maxBodySize, defaultMaxBodySize)
	}
	if opts.handshakeTimeout != 0 {
		t.Errorf("handshakeTimeout = %v, want 0", opts.handshakeTimeout)
	}
	if opts.listenHost != "" {
		t.Errorf("listenHost = %q, want every interface", opts.listenHost)
	}
}

func TestNewOptions_KeepsValues(t *testing.T) {
	opts := newOptions([]Option{
		MaxBodySizeOption(64),
		HandshakeTimeoutOption(time.Second),
	})

	if opts.maxBodySize != 64 {
		t.Errorf("maxBodySize = %d, want 64", opts.maxBodySize)
	}
	if opts.handshakeTimeout != time.Second {
		t.Errorf("handshakeTimeout = %v, want 1s", opts.handshakeTimeout)
	}
}
