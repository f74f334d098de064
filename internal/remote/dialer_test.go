package remote

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialerDialSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := NewDialer(2 * time.Second)
	conn, err := d.Dial(context.Background(), host, uint16(portNum))
	require.NoError(t, err)
	conn.Close()
}

func TestDialerDialFailsOnUnreachable(t *testing.T) {
	d := NewDialer(200 * time.Millisecond)
	_, err := d.Dial(context.Background(), "127.0.0.1", 1)
	assert.Error(t, err)
}
