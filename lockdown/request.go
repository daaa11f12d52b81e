// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import (
	"github.com/lockdownd-go/lockdownd/internal/plistcodec"
)

// send serializes dict through whichever framing mode is currently in
// effect: plaintext, or encrypted once the TLS session is Active.
func (c *Client) send(dict map[string]any) error {
	return c.activeFramer().Send(dict)
}

// recv reads and deserializes the next response dict through the same
// mode send used.
func (c *Client) recv() (map[string]any, error) {
	dict, err := c.activeFramer().Recv()
	if err != nil {
		return nil, newErr(KindPlist, "receive response", err)
	}
	return dict, nil
}

// activeFramer returns the plaintext framer, or an encrypted framer over
// the live TLS stream if TLS is Active.
func (c *Client) activeFramer() *plistcodec.Framer {
	if stream, ok := c.tls.Stream(); ok {
		return plistcodec.New(stream)
	}
	return c.plain
}

// call is the common request/response pattern used by every
// higher-level operation: build a fresh dict with Request = verb plus
// extra, merged with the client's label if set, send it, receive the
// response, and validate that it echoes the verb and carries a
// recognized Result (QueryType is the sole exception: it carries no
// Result field, only Type).
func (c *Client) call(verb string, extra map[string]any) (map[string]any, error) {
	dict := map[string]any{"Request": verb}
	for k, v := range extra {
		dict[k] = v
	}

	c.mu.Lock()
	label := c.label
	c.mu.Unlock()
	if label != nil {
		dict["Label"] = *label
	}

	if err := c.send(dict); err != nil {
		return nil, newErr(KindMux, "send "+verb, err)
	}

	resp, err := c.recv()
	if err != nil {
		return nil, err
	}

	echoed, ok := resp["Request"].(string)
	if !ok || echoed != verb {
		return nil, newErr(KindPlist, "response did not echo request "+verb, nil)
	}

	if verb == "QueryType" {
		if _, ok := resp["Type"]; !ok {
			return nil, newErr(KindPlist, "QueryType response missing Type", nil)
		}
		return resp, nil
	}

	result, ok := resp["Result"].(string)
	if !ok || (result != "Success" && result != "Failure") {
		return nil, newErr(KindPlist, "response missing a valid Result for "+verb, nil)
	}
	return resp, nil
}

// succeeded reports whether a response dict carries Result = Success.
func succeeded(resp map[string]any) bool {
	result, _ := resp["Result"].(string)
	return result == "Success"
}

// responseError extracts the verb-specific Error string from a failed
// response, or "" if absent.
func responseError(resp map[string]any) string {
	errStr, _ := resp["Error"].(string)
	return errStr
}
