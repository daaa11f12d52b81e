// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package transport wraps the caller-supplied device connection as a byte
// stream, providing the full-length read that the plist framing layer and
// the TLS handshake both depend on.
package transport

import (
	"errors"
	"fmt"
)

// DeviceConnection is the external, multiplexed device transport. It gives
// a reliable, ordered byte stream but may return short reads and writes,
// exactly like a raw socket.
type DeviceConnection interface {
	// Send writes buf to the device and returns the number of bytes sent.
	Send(buf []byte) (int, error)
	// Recv reads up to len(buf) bytes (or wanted, if smaller) into buf and
	// returns the number of bytes actually read. A short read is not an
	// error; callers loop via RecvExact when they need an exact count.
	Recv(buf []byte, wanted int) (int, error)
}

// Adapter wraps a DeviceConnection with send/receive helpers that loop
// until the requested number of bytes have been transferred. This is
// necessary because the underlying transport may short-read or
// short-write, and because both the plist framing layer and the TLS
// session's pull callback need synchronous, length-satisfying semantics.
type Adapter struct {
	conn DeviceConnection
}

// New wraps conn in an Adapter.
func New(conn DeviceConnection) *Adapter {
	return &Adapter{conn: conn}
}

// SendFull writes all of buf to the underlying connection, looping over
// partial writes. Any underlying error is returned, wrapped, as a fatal
// transport failure; it is never retried.
func (a *Adapter) SendFull(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := a.conn.Send(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, fmt.Errorf("transport: send failed after %d/%d bytes: %w", total, len(buf), err)
		}
		if n == 0 {
			return total, fmt.Errorf("transport: send made no progress after %d/%d bytes", total, len(buf))
		}
	}
	return total, nil
}

// RecvExact reads exactly n bytes into buf (which must have length >= n),
// looping over the underlying connection's short reads. The underlying
// transport may deliver the bytes across any number of calls; RecvExact
// keeps reading until n bytes are accumulated or the connection errs.
func (a *Adapter) RecvExact(buf []byte, n int) (int, error) {
	if n > len(buf) {
		return 0, errors.New("transport: destination buffer smaller than requested length")
	}
	total := 0
	for total < n {
		read, err := a.conn.Recv(buf[total:n], n-total)
		if read > 0 {
			total += read
		}
		if err != nil {
			return total, fmt.Errorf("transport: recv failed after %d/%d bytes: %w", total, n, err)
		}
		if read == 0 {
			return total, fmt.Errorf("transport: recv made no progress after %d/%d bytes", total, n)
		}
	}
	return total, nil
}

// Read implements io.Reader by delegating to the underlying connection's
// single (possibly short) Recv call; it does not loop.
func (a *Adapter) Read(p []byte) (int, error) {
	return a.conn.Recv(p, len(p))
}

// Write implements io.Writer via SendFull.
func (a *Adapter) Write(p []byte) (int, error) {
	return a.SendFull(p)
}
