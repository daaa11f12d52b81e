// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package testfake is an in-memory lockdownd stand-in for exercising a
// Client without a real device: a serving goroutine reads framed plist
// requests off one end of an in-process pipe and dispatches each to a
// registered Handler, optionally upgrading the connection to TLS in
// place when a StartSession response carries EnableSessionSSL.
package testfake

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/lockdownd-go/lockdownd/internal/plistcodec"
	"github.com/lockdownd-go/lockdownd/internal/transport"
)

// legacyCipherSuites mirrors the client's TLS 1.0 CBC+SHA1 profile so
// the fake device's handshake actually succeeds; see
// internal/tlssession for why these are the pair Go's stdlib still
// offers for a legacy-device-compatible suite.
var legacyCipherSuites = []uint16{
	tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA,
}

// Handler produces a response dict for a request dict already known to
// carry the expected Request verb. Returning a dict with no "Request"
// key is filled in automatically with the verb that was dispatched.
type Handler func(req map[string]any) map[string]any

// Device is an in-memory lockdownd stand-in.
type Device struct {
	// Conn is the end a Client under test should be constructed over.
	Conn *transport.NetConn

	mu        sync.Mutex
	handlers  map[string]Handler
	recorded  []map[string]any
	tlsCert   tls.Certificate
	serverEnd net.Conn
	done      chan struct{}
}

// New creates a Device and starts its serving goroutine. Register
// handlers with On before the client under test sends its first
// request. Requests for unregistered verbs get a generic Failure
// response.
func New() *Device {
	clientEnd, serverEnd := net.Pipe()
	d := &Device{
		Conn:      transport.NewNetConn(clientEnd),
		serverEnd: serverEnd,
		handlers:  map[string]Handler{},
		tlsCert:   generateFakeDeviceCert(),
		done:      make(chan struct{}),
	}
	go d.serve()
	return d
}

// On registers (or replaces) the handler for verb.
func (d *Device) On(verb string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[verb] = h
}

// Recorded returns every request dict received so far, in the order
// they arrived — including any whose wire bytes were later encrypted.
func (d *Device) Recorded() []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]map[string]any, len(d.recorded))
	copy(out, d.recorded)
	return out
}

// Close closes the device-side end of the pipe; the serving goroutine
// observes this as a transport error and exits.
func (d *Device) Close() error {
	err := d.serverEnd.Close()
	<-d.done
	return err
}

func (d *Device) serve() {
	defer close(d.done)

	type framer interface {
		Recv() (map[string]any, error)
		Send(map[string]any) error
	}

	plainStream := plistcodec.New(d.serverEnd)
	var stream framer = plainStream
	tlsActive := false

	for {
		req, err := stream.Recv()
		if err != nil {
			if tlsActive {
				// The client sent a TLS close-notify; plaintext framing
				// (Goodbye) resumes on the same underlying connection.
				stream = plainStream
				tlsActive = false
				continue
			}
			return
		}
		verb, _ := req["Request"].(string)

		d.mu.Lock()
		d.recorded = append(d.recorded, req)
		h, ok := d.handlers[verb]
		d.mu.Unlock()

		var resp map[string]any
		if ok {
			resp = h(req)
		} else {
			resp = map[string]any{"Result": "Failure", "Error": "Unimplemented"}
		}
		if resp == nil {
			resp = map[string]any{"Result": "Success"}
		}
		if resp["Request"] == nil {
			resp["Request"] = verb
		}
		if err := stream.Send(resp); err != nil {
			return
		}

		if verb == "StartSession" {
			if enable, _ := resp["EnableSessionSSL"].(bool); enable {
				tconn := tls.Server(d.serverEnd, &tls.Config{
					MinVersion:   tls.VersionTLS10,
					MaxVersion:   tls.VersionTLS10,
					CipherSuites: legacyCipherSuites,
					Certificates: []tls.Certificate{d.tlsCert},
				})
				if err := tconn.Handshake(); err != nil {
					return
				}
				stream = plistcodec.New(tconn)
				tlsActive = true
			}
		}
	}
}

func generateFakeDeviceCert() tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "fake-device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		panic(err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}
