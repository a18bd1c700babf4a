package netkit

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameDump_Record(t *testing.T) {
	var buf bytes.Buffer
	d := newFrameDump(&buf)
	require.NotNil(t, d)

	d.record(true, 10000, msgPing, 12)
	d.record(false, 0, msgEmpty, 0)

	assert.Equal(t, "R:10000:1:12\nW:0:4:0\n", buf.String())
}

func TestFrameDump_Disabled(t *testing.T) {
	d := newFrameDump(nil)
	assert.Nil(t, d)

	// a nil dump is a no-op
	d.record(true, 1, msgPing, 1)
}

func TestFrameDump_ServerReads(t *testing.T) {
	var buf bytes.Buffer
	handler := newRecordingHandler(true)
	server, port := startTestServer(t, handler, DumpOption(&buf))

	client := connectTestClient(t, port)
	waitPeer(t, handler.validated)

	msg := NewMessage(msgPing)
	require.NoError(t, msg.Push(uint32(9)))
	require.NoError(t, client.Send(msg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := server.Update(ctx, 0, true)
	require.NoError(t, err)

	assert.Equal(t, "R:10000:1:4\n", buf.String())
}
