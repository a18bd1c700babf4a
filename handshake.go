package netkit

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/pkg/errors"
)

// ErrHandshakeMismatch is returned when a client answers the server's
// challenge with the wrong value.
var ErrHandshakeMismatch = errors.New("handshake response mismatch")

// handshakeSize is the size of the challenge and of the response.
const handshakeSize = 8

// Scramble is the fixed bit-mixing function both peers apply to the
// server's challenge. It keeps naive or accidental clients off the port;
// it is obfuscation, not authentication.
func Scramble(x uint64) uint64 {
	out := x ^ 0xDEADBEEFC0DECAFE
	out = (out&0xF0F0F0F0F0F0F0F0)>>4 | (out&0x0F0F0F0F0F0F0F0F)<<4
	return out ^ 0xC0DEFACE12345678
}

func newNonce() (uint64, error) {
	var buf [handshakeSize]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return 0, errors.Wrap(err, "generate nonce")
	}
	return byteOrder.Uint64(buf[:]), nil
}

func encodeNonce(v uint64) []byte {
	buf := make([]byte, handshakeSize)
	byteOrder.PutUint64(buf, v)
	return buf
}

// handshake runs the role's side of the challenge exchange.
func (c *Conn[T]) handshake() error {
	if c.opts.handshakeTimeout > 0 {
		_ = c.rawConn.SetDeadline(time.Now().Add(c.opts.handshakeTimeout))
		defer c.rawConn.SetDeadline(time.Time{})
	}

	if c.role == RoleServer {
		return c.challengeClient()
	}
	return c.answerServer()
}

func (c *Conn[T]) challengeClient() error {
	nonce, err := newNonce()
	if err != nil {
		return err
	}
	expected := Scramble(nonce)

	if _, err = c.rawConn.Write(encodeNonce(nonce)); err != nil {
		return errors.Wrap(err, "write challenge")
	}

	buf, err := c.reader.Next(handshakeSize)
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if byteOrder.Uint64(buf) != expected {
		c.metrics.handshakeFailures.Inc()
		return ErrHandshakeMismatch
	}
	return nil
}

func (c *Conn[T]) answerServer() error {
	buf, err := c.reader.Next(handshakeSize)
	if err != nil {
		return errors.Wrap(err, "read challenge")
	}

	if _, err = c.rawConn.Write(encodeNonce(Scramble(byteOrder.Uint64(buf)))); err != nil {
		return errors.Wrap(err, "write response")
	}
	return nil
}
