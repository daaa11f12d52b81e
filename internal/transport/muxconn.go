// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package transport

import (
	"fmt"
	"net"
)

// LockdownPort is the muxed port lockdownd listens on, as relayed by the
// device multiplexer.
const LockdownPort = 0xf27e

// NetConn adapts a net.Conn (for example one already dialed through a
// usbmux-compatible relay) to the DeviceConnection contract. The relay
// itself — opening a muxed channel to LockdownPort on a specific attached
// device — is outside this package's scope; NetConn only wraps whatever
// byte stream the caller hands it.
type NetConn struct {
	conn net.Conn
}

// NewNetConn wraps an already-connected net.Conn.
func NewNetConn(conn net.Conn) *NetConn {
	return &NetConn{conn: conn}
}

// Dial connects to addr (typically a local TCP forward of the device's
// muxed lockdown port) and wraps the resulting connection.
func Dial(addr string) (*NetConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewNetConn(conn), nil
}

func (c *NetConn) Send(buf []byte) (int, error) {
	return c.conn.Write(buf)
}

func (c *NetConn) Recv(buf []byte, wanted int) (int, error) {
	if wanted < len(buf) {
		buf = buf[:wanted]
	}
	return c.conn.Read(buf)
}

// Close closes the underlying connection.
func (c *NetConn) Close() error {
	return c.conn.Close()
}

// Raw returns the underlying net.Conn.
func (c *NetConn) Raw() net.Conn {
	return c.conn
}
