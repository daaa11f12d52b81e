// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import (
	"context"
	"crypto/tls"
	"log/slog"

	"github.com/lockdownd-go/lockdownd/internal/tlssession"
)

// hostTLSCertificate loads the host's signing identity from the trust
// store and pairs its HostCertificate with its HostKey into a
// tls.Certificate. The two are kept as separate PEM blocks throughout
// the trust store and certfab — HostCertificate alone is also what goes
// over the wire in a PairRecord, so it must never carry the private key.
func (c *Client) hostTLSCertificate(ctx context.Context) (tls.Certificate, error) {
	identity, err := c.store.KeysAndCerts(ctx)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(identity.HostCertificate, identity.HostKey)
}

// QueryType asks the device for its lockdownd service type. A
// non-canonical type (e.g. recovery mode) is logged but not an error —
// the caller decides whether to proceed.
func (c *Client) QueryType(ctx context.Context) (string, error) {
	resp, err := c.call("QueryType", nil)
	if err != nil {
		return "", err
	}
	deviceType, _ := resp["Type"].(string)
	if deviceType != canonicalDeviceType {
		slog.Warn("device reported non-canonical lockdownd type", "type", deviceType, "expected", canonicalDeviceType)
	}
	return deviceType, nil
}

// StartSession requires a HostID from the trust store. If the client
// already holds a session, StopSession is called first. On success the
// returned sessionID is cached on the client; if the device requested
// EnableSessionSSL, TLS is enabled in place and subsequent I/O switches
// to encrypted mode.
func (c *Client) StartSession(ctx context.Context) (sessionID string, tlsActive bool, err error) {
	c.mu.Lock()
	hasSession := c.hasSession
	c.mu.Unlock()
	if hasSession {
		if _, err := c.StopSession(ctx); err != nil {
			return "", false, err
		}
	}

	hostID, existed, err := c.store.HostID(ctx)
	if err != nil {
		return "", false, newErr(KindInvalidConf, "read host id", err)
	}
	if !existed || hostID == "" {
		return "", false, newErr(KindInvalidConf, "no host id in trust store", nil)
	}

	resp, err := c.call("StartSession", map[string]any{"HostID": hostID})
	if err != nil {
		return "", false, err
	}

	if !succeeded(resp) {
		if responseError(resp) == "InvalidHostID" {
			return "", false, newErr(KindInvalidHostID, "StartSession refused: invalid host id", nil)
		}
		return "", false, newErr(KindPairingFailed, "StartSession failed: "+responseError(resp), nil)
	}

	sid, _ := resp["SessionID"].(string)
	if sid == "" {
		return "", false, newErr(KindPlist, "StartSession response missing SessionID", nil)
	}

	c.mu.Lock()
	c.sessionID = sid
	c.hasSession = true
	c.mu.Unlock()

	enableSSL, _ := resp["EnableSessionSSL"].(bool)
	if !enableSSL {
		return sid, false, nil
	}

	hostCert, err := c.hostTLSCertificate(ctx)
	if err != nil {
		return sid, false, newErr(KindSSL, "load host TLS credentials", err)
	}
	c.tls.SetCredentials(tlssession.Credentials{HostCertificate: hostCert})

	if err := c.tls.Enable(); err != nil {
		// The protocol-level session is still valid; TLS failed on top of
		// it. session_id stays stored, TLS disabled, caller should call
		// StopSession.
		return sid, false, newErr(KindSSL, "TLS handshake failed", err)
	}
	return sid, true, nil
}

// StopSession requires a known session id. TLS is always disabled
// afterward regardless of whether the protocol-level StopSession
// succeeded, mirroring the symmetry of StartSession's upgrade.
func (c *Client) StopSession(ctx context.Context) (ok bool, err error) {
	c.mu.Lock()
	sid := c.sessionID
	hasSession := c.hasSession
	c.mu.Unlock()
	if !hasSession {
		return false, ErrNoRunningSession
	}

	resp, callErr := c.call("StopSession", map[string]any{"SessionID": sid})

	c.mu.Lock()
	c.sessionID = ""
	c.hasSession = false
	c.mu.Unlock()

	tlsErr := c.tls.Disable()

	if callErr != nil {
		return false, callErr
	}
	if !succeeded(resp) {
		return false, newErr(KindPairingFailed, "StopSession failed: "+responseError(resp), nil)
	}
	if tlsErr != nil {
		return true, newErr(KindSSL, "TLS close-notify failed", tlsErr)
	}
	return true, nil
}

// Goodbye is sent unconditionally during Free, before the underlying
// plist channel is released.
func (c *Client) Goodbye(ctx context.Context) (bool, error) {
	resp, err := c.call("Goodbye", nil)
	if err != nil {
		return false, err
	}
	return succeeded(resp), nil
}
