// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package plistcodec implements the length-prefixed XML property-list
// framing lockdownd uses on the wire: a 32-bit big-endian length prefix
// followed by that many bytes of XML plist. The same framing is used
// whether the underlying stream is plaintext or running through the TLS
// session established after StartSession — only the byte stream backing
// the Framer changes.
package plistcodec

import (
	"encoding/binary"
	"fmt"
	"io"

	"howett.net/plist"
)

// Framer sends and receives framed plists over an arbitrary byte stream.
// It never retries; a failed send or receive is returned to the caller.
type Framer struct {
	stream io.ReadWriter
}

// New wraps stream (a plaintext transport adapter or an active TLS
// session) in a Framer.
func New(stream io.ReadWriter) *Framer {
	return &Framer{stream: stream}
}

// Send serializes dict as an XML plist and writes the length-prefixed
// frame.
func (f *Framer) Send(dict map[string]any) error {
	body, err := plist.Marshal(dict, plist.XMLFormat)
	if err != nil {
		return fmt.Errorf("plistcodec: marshal: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))

	if _, err := writeFull(f.stream, header[:]); err != nil {
		return fmt.Errorf("plistcodec: write length prefix: %w", err)
	}
	if _, err := writeFull(f.stream, body); err != nil {
		return fmt.Errorf("plistcodec: write payload: %w", err)
	}
	return nil
}

// Recv reads one framed plist and unmarshals it into a dictionary. An
// empty or unparseable response is a protocol error, per lockdownd's
// framing contract.
func (f *Framer) Recv() (map[string]any, error) {
	var header [4]byte
	if _, err := readExact(f.stream, header[:]); err != nil {
		return nil, fmt.Errorf("plistcodec: read length prefix: %w", err)
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, fmt.Errorf("plistcodec: empty response")
	}

	body := make([]byte, length)
	if _, err := readExact(f.stream, body); err != nil {
		return nil, fmt.Errorf("plistcodec: read payload: %w", err)
	}

	var dict map[string]any
	if err := plist.Unmarshal(body, &dict); err != nil {
		return nil, fmt.Errorf("plistcodec: unmarshal: %w", err)
	}
	if dict == nil {
		return nil, fmt.Errorf("plistcodec: response did not decode to a dictionary")
	}
	return dict, nil
}

func writeFull(w io.Writer, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, io.ErrShortWrite
		}
	}
	return total, nil
}

func readExact(r io.Reader, buf []byte) (int, error) {
	return io.ReadFull(r, buf)
}
