// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package plistcodec

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSendRecvRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf)

	dict := map[string]any{
		"Request": "QueryType",
		"Label":   "test",
	}
	if err := f.Send(dict); err != nil {
		t.Fatalf("Send: %v", err)
	}

	got, err := f.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if got["Request"] != "QueryType" {
		t.Fatalf("Request = %v, want QueryType", got["Request"])
	}
	if got["Label"] != "test" {
		t.Fatalf("Label = %v, want test", got["Label"])
	}
}

func TestRecvEmptyResponseIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 0)
	buf.Write(header[:])

	f := New(&buf)
	if _, err := f.Recv(); err == nil {
		t.Fatal("expected an error for a zero-length frame")
	}
}

func TestRecvUnparseablePayloadIsProtocolError(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("not a plist")
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	buf.Write(header[:])
	buf.Write(payload)

	f := New(&buf)
	if _, err := f.Recv(); err == nil {
		t.Fatal("expected an error for an unparseable payload")
	}
}
