package remote

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryInsertLookupRemove(t *testing.T) {
	r := NewRegistry()
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r.Insert("cid", server)
	got, ok := r.Lookup("cid")
	assert.True(t, ok)
	assert.Equal(t, server, got)
	assert.Equal(t, 1, r.Len())

	r.Remove("cid")
	_, ok = r.Lookup("cid")
	assert.False(t, ok)
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("nope")
	assert.False(t, ok)
}
