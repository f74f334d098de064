package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	cases := []*Message{
		NewConnect("abcd1234", "example.com", 80),
		NewConnectReply("abcd1234", true, ""),
		NewConnectReply("abcd1234", false, "dial failed: connection refused"),
		NewData("abcd1234", []byte("hello world"), "example.com", 80),
		NewData("abcd1234", nil, "example.com", 80),
		NewClose("abcd1234"),
		NewSwitch(),
	}

	for _, in := range cases {
		b, err := in.Marshal()
		require.NoError(t, err)

		out, err := Unmarshal(b)
		require.NoError(t, err)

		assert.Equal(t, in.Cmd, out.Cmd)
		assert.Equal(t, in.CID, out.CID)
		assert.Equal(t, in.OK, out.OK)
		assert.Equal(t, in.Msg, out.Msg)
		assert.Equal(t, in.Host, out.Host)
		assert.Equal(t, in.Port, out.Port)
		assert.Equal(t, in.Data, out.Data)
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	b, err := NewClose("abcd1234").Marshal()
	require.NoError(t, err)
	b[0] = 0xFF

	_, err = Unmarshal(b)
	assert.Error(t, err)
}

func TestUnmarshalRejectsTruncated(t *testing.T) {
	b, err := NewData("abcd1234", []byte("payload"), "h", 1).Marshal()
	require.NoError(t, err)

	_, err = Unmarshal(b[:len(b)-2])
	assert.Error(t, err)
}

func TestMarshalRejectsOversizePayload(t *testing.T) {
	big := make([]byte, 17*1024)
	m := NewData("abcd1234", big, "h", 1)
	_, err := m.Marshal()
	assert.Error(t, err)
}
