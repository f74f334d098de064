package socks5

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (client, server net.Conn) {
	t.Helper()
	client, server = net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestAcceptConnectIPv4(t *testing.T) {
	client, server := pipeConns(t)

	done := make(chan struct{})
	var req *Request
	var err error
	go func() {
		defer close(done)
		req, err = Accept(server)
	}()

	_, werr := client.Write([]byte{Version5, 1, AuthNone})
	require.NoError(t, werr)
	ack := make([]byte, 2)
	_, rerr := client.Read(ack)
	require.NoError(t, rerr)
	assert.Equal(t, []byte{Version5, AuthNone}, ack)

	// CONNECT 93.184.216.34:80
	_, werr = client.Write([]byte{Version5, CmdConnect, 0x00, AddrTypeIPv4, 93, 184, 216, 34, 0x00, 0x50})
	require.NoError(t, werr)

	<-done
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "93.184.216.34", req.Host)
	assert.Equal(t, uint16(80), req.Port)
}

func TestAcceptConnectDomain(t *testing.T) {
	client, server := pipeConns(t)

	done := make(chan struct{})
	var req *Request
	var err error
	go func() {
		defer close(done)
		req, err = Accept(server)
	}()

	_, _ = client.Write([]byte{Version5, 1, AuthNone})
	ack := make([]byte, 2)
	_, _ = client.Read(ack)

	domain := "example.com"
	packet := []byte{Version5, CmdConnect, 0x00, AddrTypeDomain, byte(len(domain))}
	packet = append(packet, domain...)
	packet = append(packet, 0x01, 0xBB) // port 443
	_, werr := client.Write(packet)
	require.NoError(t, werr)

	<-done
	require.NoError(t, err)
	assert.Equal(t, "example.com", req.Host)
	assert.Equal(t, uint16(443), req.Port)
}

func TestAcceptRejectsUnsupportedCommand(t *testing.T) {
	client, server := pipeConns(t)

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Accept(server)
	}()

	_, _ = client.Write([]byte{Version5, 1, AuthNone})
	ack := make([]byte, 2)
	_, _ = client.Read(ack)

	// BIND command (0x02), unsupported. Accept replies as soon as it has
	// read the 4-byte request header, so the address and port are written
	// in the background: net.Pipe is unbuffered, and an unread tail would
	// block this goroutine before it could read the reply.
	_, werr := client.Write([]byte{Version5, 0x02, 0x00, AddrTypeIPv4})
	require.NoError(t, werr)
	go func() { _, _ = client.Write([]byte{1, 2, 3, 4, 0x00, 0x50}) }()

	reply := make([]byte, 10)
	_, rerr := client.Read(reply)
	require.NoError(t, rerr)
	assert.Equal(t, byte(ReplyCommandNotSupported), reply[1])

	<-done
	assert.Error(t, err)
}

func TestSendSuccessUsesZeroBoundAddress(t *testing.T) {
	client, server := pipeConns(t)

	go func() {
		_ = SendSuccess(server)
	}()

	reply := make([]byte, 10)
	_, err := client.Read(reply)
	require.NoError(t, err)

	assert.Equal(t, []byte{Version5, ReplySuccess, 0x00, AddrTypeIPv4, 0, 0, 0, 0, 0, 0}, reply)
}
