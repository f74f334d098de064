// Package protocol defines the wire format carried by the tunnel
// WebSocket: one binary-encoded Message per WebSocket message.
package protocol

import (
	"encoding/binary"
	"errors"

	tnlerrors "github.com/sahmadiut/half-tunnel/internal/errors"
	"github.com/sahmadiut/half-tunnel/internal/constants"
)

// Magic bytes identify a frame produced by this protocol.
const (
	MagicByte1 byte = 0x54 // 'T'
	MagicByte2 byte = 0x4E // 'N'
)

// Version is the protocol version carried in every frame.
const Version byte = 0x01

// Cmd enumerates the frame's command.
type Cmd byte

const (
	CmdConnect Cmd = 0x01
	CmdData    Cmd = 0x02
	CmdClose   Cmd = 0x03
	CmdSwitch  Cmd = 0x04
)

// String implements fmt.Stringer for logging.
func (c Cmd) String() string {
	switch c {
	case CmdConnect:
		return "connect"
	case CmdData:
		return "data"
	case CmdClose:
		return "close"
	case CmdSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// cidLen is the length of the cids the local side generates. On the
// wire the cid is length-prefixed, so a switch frame (no cid) carries a
// zero length and no cid bytes.
const cidLen = 8

// Message is the in-memory representation of one frame. Field
// applicability per command follows spec §6: cid is present for
// connect/data/close, ok/msg for connect replies, host/port for
// connect/data, data for data frames.
type Message struct {
	Cmd  Cmd
	CID  string
	OK   bool
	Msg  string
	Host string
	Port uint16
	Data []byte
}

// Marshal encodes the message as a self-describing binary record:
//
//	magic(2) version(1) cmd(1) cidLen(1) cid(cidLen) ok(1)
//	msgLen(2) msg(msgLen) hostLen(2) host(hostLen) port(2)
//	dataLen(4) data(dataLen)
//
// Every variable-length field is explicitly length-prefixed so decoding
// never has to guess where one field ends and the next begins.
func (m *Message) Marshal() ([]byte, error) {
	if len(m.Data) > constants.MaxFramePayload {
		return nil, tnlerrors.ErrFrameTooLarge
	}

	cid := []byte(m.CID)
	msg := []byte(m.Msg)
	host := []byte(m.Host)

	size := 2 + 1 + 1 + 1 + len(cid) + 1 + 2 + len(msg) + 2 + len(host) + 2 + 4 + len(m.Data)
	buf := make([]byte, size)
	off := 0

	buf[off] = MagicByte1
	buf[off+1] = MagicByte2
	off += 2
	buf[off] = Version
	off++
	buf[off] = byte(m.Cmd)
	off++

	buf[off] = byte(len(cid))
	off++
	off += copy(buf[off:], cid)

	if m.OK {
		buf[off] = 1
	}
	off++

	binary.BigEndian.PutUint16(buf[off:], uint16(len(msg)))
	off += 2
	off += copy(buf[off:], msg)

	binary.BigEndian.PutUint16(buf[off:], uint16(len(host)))
	off += 2
	off += copy(buf[off:], host)

	binary.BigEndian.PutUint16(buf[off:], m.Port)
	off += 2

	binary.BigEndian.PutUint32(buf[off:], uint32(len(m.Data)))
	off += 4
	off += copy(buf[off:], m.Data)

	return buf[:off], nil
}

// Unmarshal decodes a binary record produced by Marshal.
func Unmarshal(b []byte) (*Message, error) {
	if len(b) < 2+1+1+1+1+2+2+2+4 {
		return nil, tnlerrors.ErrInvalidFrame
	}
	if b[0] != MagicByte1 || b[1] != MagicByte2 {
		return nil, tnlerrors.ErrInvalidFrame
	}
	off := 2
	version := b[off]
	off++
	if version != Version {
		return nil, tnlerrors.ErrInvalidFrame
	}
	cmd := Cmd(b[off])
	off++

	m := &Message{Cmd: cmd}

	cidLen, err := readByteLen(b, &off)
	if err != nil {
		return nil, err
	}
	if len(b) < off+cidLen {
		return nil, tnlerrors.ErrInvalidFrame
	}
	m.CID = string(b[off : off+cidLen])
	off += cidLen

	if len(b) < off+1 {
		return nil, tnlerrors.ErrInvalidFrame
	}
	m.OK = b[off] != 0
	off++

	msgLen, err := readUint16Len(b, &off)
	if err != nil {
		return nil, err
	}
	if len(b) < off+msgLen {
		return nil, tnlerrors.ErrInvalidFrame
	}
	m.Msg = string(b[off : off+msgLen])
	off += msgLen

	hostLen, err := readUint16Len(b, &off)
	if err != nil {
		return nil, err
	}
	if len(b) < off+hostLen {
		return nil, tnlerrors.ErrInvalidFrame
	}
	m.Host = string(b[off : off+hostLen])
	off += hostLen

	if len(b) < off+2 {
		return nil, tnlerrors.ErrInvalidFrame
	}
	m.Port = binary.BigEndian.Uint16(b[off:])
	off += 2

	if len(b) < off+4 {
		return nil, tnlerrors.ErrInvalidFrame
	}
	dataLen := int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if dataLen > constants.MaxFramePayload || len(b) < off+dataLen {
		return nil, tnlerrors.ErrInvalidFrame
	}
	if dataLen > 0 {
		m.Data = make([]byte, dataLen)
		copy(m.Data, b[off:off+dataLen])
	}

	return m, nil
}

func readByteLen(b []byte, off *int) (int, error) {
	if len(b) < *off+1 {
		return 0, errors.New("short buffer")
	}
	n := int(b[*off])
	*off++
	return n, nil
}

func readUint16Len(b []byte, off *int) (int, error) {
	if len(b) < *off+2 {
		return 0, errors.New("short buffer")
	}
	n := int(binary.BigEndian.Uint16(b[*off:]))
	*off += 2
	return n, nil
}

// NewConnect builds a connect frame requesting a dial to host:port.
func NewConnect(cid, host string, port uint16) *Message {
	return &Message{Cmd: CmdConnect, CID: cid, Host: host, Port: port}
}

// NewConnectReply builds a connect acknowledgment.
func NewConnectReply(cid string, ok bool, msg string) *Message {
	return &Message{Cmd: CmdConnect, CID: cid, OK: ok, Msg: msg}
}

// NewData builds a data frame. host/port echo the destination so the
// remote side can recover a pruned stream (spec §4.9).
func NewData(cid string, payload []byte, host string, port uint16) *Message {
	return &Message{Cmd: CmdData, CID: cid, Data: payload, Host: host, Port: port}
}

// NewClose builds a close frame.
func NewClose(cid string) *Message {
	return &Message{Cmd: CmdClose, CID: cid}
}

// NewSwitch builds a switch advisory frame.
func NewSwitch() *Message {
	return &Message{Cmd: CmdSwitch}
}
