package netkit

import (
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScramble(t *testing.T) {
	assert.Equal(t, uint64(0x2d0411301ed9fa97), Scramble(0))
	assert.Equal(t, uint64(0x3d36454686632669), Scramble(0x0123456789ABCDEF))
	assert.NotEqual(t, Scramble(1), Scramble(2))
}

func TestHandshake_Success(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newTestConn(RoleServer, firstClientID, a)
	client := newTestConn(RoleClient, 0, b)

	errCh := make(chan error, 1)
	go func() { errCh <- client.handshake() }()

	require.NoError(t, server.handshake())
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for client handshake")
	}
	assert.Zero(t, testutil.ToFloat64(server.metrics.handshakeFailures))
}

func TestHandshake_Mismatch(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := newTestConn(RoleServer, firstClientID, a)

	go func() {
		buf := make([]byte, handshakeSize)
		if _, err := b.Read(buf); err != nil {
			return
		}
		nonce := byteOrder.Uint64(buf)
		_, _ = b.Write(encodeNonce(Scramble(nonce) + 1))
	}()

	err := server.handshake()
	assert.True(t, errors.Is(err, ErrHandshakeMismatch), "got %v", err)
	assert.Equal(t, float64(1), testutil.ToFloat64(server.metrics.handshakeFailures))
}

func TestHandshake_Timeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	// the server side never sends its challenge
	client := newTestConn(RoleClient, 0, b, HandshakeTimeoutOption(50*time.Millisecond))

	start := time.Now()
	err := client.handshake()
	require.Error(t, err)

	var netErr net.Error
	require.True(t, errors.As(err, &netErr), "got %v", err)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func newTestConn(role Role, id uint32, raw net.Conn, opt ...Option) *Conn[testType] {
	opts := newOptions(append([]Option{LoggerOption(testLogger())}, opt...))
	c := newConn[testType](role, id, NewQueue[OwnedMessage[testType]](), opts, newMetrics(nil, role.String()), nil)
	c.attach(raw)
	return c
}
