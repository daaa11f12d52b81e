// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import "context"

// StartService requests a named service channel. It requires an active
// session and a HostID on file in the trust store. On success it
// returns the TCP-like port on the device side of the multiplexer; the
// caller opens a new muxed channel to that port and speaks the named
// service's own protocol. The returned channel is not automatically
// wrapped in TLS.
func (c *Client) StartService(ctx context.Context, name string) (port uint32, err error) {
	c.mu.Lock()
	hasSession := c.hasSession
	c.mu.Unlock()
	if !hasSession {
		return 0, ErrNoRunningSession
	}

	if _, existed, err := c.store.HostID(ctx); err != nil {
		return 0, newErr(KindInvalidConf, "read host id", err)
	} else if !existed {
		return 0, newErr(KindInvalidConf, "no host id in trust store", nil)
	}

	resp, err := c.call("StartService", map[string]any{"Service": name})
	if err != nil {
		return 0, err
	}
	if !succeeded(resp) {
		return 0, newErr(KindStartServiceFailed, "StartService failed: "+responseError(resp), nil)
	}

	p := extractPort(resp["Port"])
	if p == 0 {
		return 0, newErr(KindStartServiceFailed, "StartService returned a zero or missing port", nil)
	}
	return p, nil
}

// extractPort normalizes the plist-decoded Port field (which may surface
// as any of the codec's integer representations) to uint32.
func extractPort(v any) uint32 {
	switch n := v.(type) {
	case uint64:
		return uint32(n)
	case int64:
		return uint32(n)
	case uint32:
		return n
	case int:
		return uint32(n)
	case uint:
		return uint32(n)
	default:
		return 0
	}
}
