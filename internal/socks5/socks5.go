// Package socks5 implements the SOCKS5 greeting and CONNECT request
// parsing the local side performs before a stream enters the
// multiplexer (spec §4.1). Only NO_AUTH and the CONNECT command are
// supported, per spec §1's Non-goals.
package socks5

import (
	"encoding/binary"
	"io"
	"net"

	tnlerrors "github.com/sahmadiut/half-tunnel/internal/errors"
)

// Protocol constants.
const (
	Version5 = 0x05

	AuthNone         = 0x00
	AuthNoAcceptable = 0xFF

	CmdConnect = 0x01

	AddrTypeIPv4   = 0x01
	AddrTypeDomain = 0x03
	AddrTypeIPv6   = 0x04

	ReplySuccess                 = 0x00
	ReplyGeneralFailure          = 0x01
	ReplyConnectionRefused       = 0x05
	ReplyCommandNotSupported     = 0x07
	ReplyAddressTypeNotSupported = 0x08
)

// Request is a parsed SOCKS5 CONNECT request.
type Request struct {
	Host string
	Port uint16
}

// Accept performs the SOCKS5 greeting (NO_AUTH only) and parses a
// CONNECT request from conn. On success it returns the destination;
// the caller is responsible for eventually calling SendSuccess or
// SendFailure on conn — spec §4.1 defers the reply until the remote
// peer's connect acknowledgment arrives.
//
// On a malformed greeting, Accept returns an error and the caller
// should close conn silently (spec §8 S6). On an unsupported command
// or address type, Accept writes the canonical rejection reply itself
// before returning an error.
func Accept(conn net.Conn) (*Request, error) {
	if err := negotiateAuth(conn); err != nil {
		return nil, err
	}
	return parseRequest(conn)
}

func negotiateAuth(conn net.Conn) error {
	header := make([]byte, 2)
	if _, err := io.ReadFull(conn, header); err != nil {
		return err
	}
	if header[0] != Version5 {
		return tnlerrors.ErrUnsupportedVersion
	}

	methods := make([]byte, int(header[1]))
	if _, err := io.ReadFull(conn, methods); err != nil {
		return err
	}

	hasNoAuth := false
	for _, m := range methods {
		if m == AuthNone {
			hasNoAuth = true
			break
		}
	}
	if !hasNoAuth {
		_, _ = conn.Write([]byte{Version5, AuthNoAcceptable})
		return tnlerrors.ErrUnsupportedVersion
	}

	_, err := conn.Write([]byte{Version5, AuthNone})
	return err
}

func parseRequest(conn net.Conn) (*Request, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, err
	}
	if header[0] != Version5 {
		return nil, tnlerrors.ErrUnsupportedVersion
	}
	if header[1] != CmdConnect {
		_ = SendFailure(conn, ReplyCommandNotSupported)
		return nil, tnlerrors.ErrUnsupportedCommand
	}

	var host string
	switch header[3] {
	case AddrTypeIPv4:
		addr := make([]byte, 4)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return nil, err
		}
		host = net.IP(addr).String()

	case AddrTypeDomain:
		lenBuf := make([]byte, 1)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return nil, err
		}
		domain := make([]byte, lenBuf[0])
		if _, err := io.ReadFull(conn, domain); err != nil {
			return nil, err
		}
		host = string(domain)

	case AddrTypeIPv6:
		addr := make([]byte, 16)
		if _, err := io.ReadFull(conn, addr); err != nil {
			return nil, err
		}
		host = "[" + net.IP(addr).String() + "]"

	default:
		_ = SendFailure(conn, ReplyAddressTypeNotSupported)
		return nil, tnlerrors.ErrUnsupportedAddressType
	}

	portBuf := make([]byte, 2)
	if _, err := io.ReadFull(conn, portBuf); err != nil {
		return nil, err
	}

	return &Request{Host: host, Port: binary.BigEndian.Uint16(portBuf)}, nil
}

// SendSuccess writes the SOCKS5 success reply. Per spec §6, the bound
// address is always the fixed IPv4 zero address regardless of the
// real upstream address.
func SendSuccess(conn net.Conn) error {
	return sendReply(conn, ReplySuccess)
}

// SendFailure writes a SOCKS5 failure reply with the given code.
func SendFailure(conn net.Conn, code byte) error {
	return sendReply(conn, code)
}

func sendReply(conn net.Conn, code byte) error {
	reply := make([]byte, 10)
	reply[0] = Version5
	reply[1] = code
	reply[3] = AddrTypeIPv4
	// reply[4:8] and reply[8:10] stay zero: 0.0.0.0:0, per spec §6.
	_, err := conn.Write(reply)
	return err
}
