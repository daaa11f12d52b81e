// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package lockdown implements a client for a mobile device's
// administrative daemon ("lockdownd"): a property-list-over-TLS
// request/response protocol that establishes trust between host and
// device (pairing), negotiates a session (optionally TLS-wrapped), and
// launches named service channels within it.
package lockdown

import (
	"context"
	"sync"

	"github.com/lockdownd-go/lockdownd/internal/plistcodec"
	"github.com/lockdownd-go/lockdownd/internal/tlssession"
	"github.com/lockdownd-go/lockdownd/internal/transport"
)

// canonicalDeviceType is what QueryType returns for a normally-booted
// device. Any other value is logged, not treated as fatal — the device
// may be in recovery mode.
const canonicalDeviceType = "com.apple.mobile.lockdown"

// Client represents one attached-device session. It exclusively owns
// the underlying plist channel and the optional TLS session layered
// over it.
type Client struct {
	mu sync.Mutex

	store TrustStore

	adapter *transport.Adapter
	plain   *plistcodec.Framer
	tls     *tlssession.Session

	sessionID  string
	hasSession bool

	deviceUUID string
	label      *string
}

// New constructs a Client over conn without performing any handshake.
// The caller is responsible for Pair/ValidatePair/StartSession as
// needed; NewWithHandshake performs the full sequence automatically.
func New(conn DeviceConnection, store TrustStore) *Client {
	adapter := transport.New(conn)
	return &Client{
		store:   store,
		adapter: adapter,
		plain:   plistcodec.New(adapter),
		tls:     tlssession.New(adapter, tlssession.Credentials{}),
	}
}

// NewWithHandshake constructs a client and immediately performs
// QueryType, Pair (if the device is not yet trusted), ValidatePair, and
// StartSession. Each step either advances the handshake or returns its
// error; on any failure the partially-constructed client is freed and
// the error is propagated.
func NewWithHandshake(ctx context.Context, conn DeviceConnection, store TrustStore, label string) (*Client, error) {
	c := New(conn, store)
	if label != "" {
		c.SetLabel(&label)
	}

	if err := c.runHandshake(ctx); err != nil {
		c.Free(ctx)
		return nil, err
	}
	return c, nil
}

// runHandshake is the handshake constructor expressed as a sequence of
// fallible steps: the first error short-circuits, leaving cleanup to
// the caller (NewWithHandshake calls Free on error).
func (c *Client) runHandshake(ctx context.Context) error {
	if _, err := c.QueryType(ctx); err != nil {
		return err
	}

	uuid, err := c.getDeviceUUID(ctx)
	if err != nil {
		return err
	}
	c.deviceUUID = uuid

	if _, existed, err := c.store.HostID(ctx); err != nil {
		return newErr(KindInvalidConf, "read host id", err)
	} else if !existed {
		return newErr(KindInvalidConf, "no host id in trust store", nil)
	}

	trusted, err := c.store.HasDevicePublicKey(ctx, uuid)
	if err != nil {
		return newErr(KindInvalidConf, "query device trust", err)
	}
	if !trusted {
		if err := c.Pair(ctx); err != nil {
			return err
		}
	}

	if err := c.ValidatePair(ctx); err != nil {
		return err
	}

	if _, _, err := c.StartSession(ctx); err != nil {
		return err
	}
	return nil
}

// SetLabel sets (or, if label is nil, removes) the diagnostic label sent
// with every request from this point on.
func (c *Client) SetLabel(label *string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = label
}

// Free performs best-effort teardown: if a session is open, StopSession
// (which always disables TLS), then Goodbye, then the transport is left
// for the caller to close. Errors from either step are ignored — this
// is destructive, always-attempted cleanup, not a fallible operation.
func (c *Client) Free(ctx context.Context) {
	c.mu.Lock()
	hasSession := c.hasSession
	c.mu.Unlock()

	if hasSession {
		_, _ = c.StopSession(ctx)
	}
	_, _ = c.Goodbye(ctx)
}

func (c *Client) getDeviceUUID(ctx context.Context) (string, error) {
	v, err := c.GetValue(ctx, "", "UniqueDeviceID")
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", newErr(KindPlist, "UniqueDeviceID missing or not a string", nil)
	}
	return s, nil
}
