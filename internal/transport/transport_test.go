package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialAcceptRoundTrip(t *testing.T) {
	var accepted *Connection
	ready := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r)
		require.NoError(t, err)
		accepted = conn
		close(ready)
	}))
	defer server.Close()

	cfg := DefaultConfig("ws" + server.URL[len("http"):])
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	<-ready

	msg := protocol.NewData("abcd1234", []byte("hello"), "example.com", 80)
	require.NoError(t, client.WriteMessage(msg))

	got, err := accepted.ReadMessageTimeout(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.CID, got.CID)
	assert.Equal(t, msg.Data, got.Data)
	assert.Equal(t, msg.Host, got.Host)
	assert.Equal(t, msg.Port, got.Port)
}

func TestReadMessageTimeoutExpires(t *testing.T) {
	var accepted *Connection
	ready := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Accept(w, r)
		require.NoError(t, err)
		accepted = conn
		close(ready)
	}))
	defer server.Close()

	cfg := DefaultConfig("ws" + server.URL[len("http"):])
	client, err := Dial(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	<-ready

	_, err = accepted.ReadMessageTimeout(50 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}
