package local

import (
	"net"
	"testing"
	"time"

	"github.com/sahmadiut/half-tunnel/internal/constants"
	"github.com/sahmadiut/half-tunnel/internal/protocol"
	"github.com/stretchr/testify/assert"
)

func TestNewStreamStartsAwaitingConnectAck(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := newStream("cid", client, "host", 443)
	assert.Equal(t, PhaseAwaitingConnectAck, s.Phase())
}

func TestStreamSetPhase(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := newStream("cid", client, "host", 443)
	s.SetPhase(PhaseEstablished)
	assert.Equal(t, PhaseEstablished, s.Phase())
}

func TestStreamPushDeliversOnInbound(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := newStream("cid", client, "host", 443)
	m := protocol.NewData("cid", []byte("payload"), "host", 443)

	assert.True(t, s.Push(m))
	got := <-s.Inbound()
	assert.Equal(t, m, got)
}

func TestStreamPushBlocksWhenFullAndUnblocksOnConsume(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := newStream("cid", client, "host", 443)
	for i := 0; i < constants.StreamQueueDepth; i++ {
		assert.True(t, s.Push(protocol.NewClose("cid")))
	}

	done := make(chan bool, 1)
	go func() { done <- s.Push(protocol.NewClose("cid")) }()

	select {
	case <-done:
		t.Fatal("Push returned before the queue had room, back-pressure was not applied")
	case <-time.After(50 * time.Millisecond):
	}

	<-s.Inbound()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after the queue drained")
	}
}

func TestStreamPushUnblocksOnClose(t *testing.T) {
	client, _ := net.Pipe()
	defer client.Close()

	s := newStream("cid", client, "host", 443)
	for i := 0; i < constants.StreamQueueDepth; i++ {
		assert.True(t, s.Push(protocol.NewClose("cid")))
	}

	done := make(chan bool, 1)
	go func() { done <- s.Push(protocol.NewClose("cid")) }()

	s.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Push did not unblock after Close")
	}
}
