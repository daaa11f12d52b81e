// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import "context"

// GetValue returns the Value sub-node of the response for the given
// domain/key (either may be empty, in which case the corresponding
// field is simply omitted from the request).
func (c *Client) GetValue(ctx context.Context, domain, key string) (any, error) {
	extra := map[string]any{}
	if domain != "" {
		extra["Domain"] = domain
	}
	if key != "" {
		extra["Key"] = key
	}

	resp, err := c.call("GetValue", extra)
	if err != nil {
		return nil, err
	}
	if !succeeded(resp) {
		return nil, newErr(KindPlist, "GetValue failed: "+responseError(resp), nil)
	}
	return resp["Value"], nil
}

// SetValue inserts value directly into the request for the given
// domain/key.
func (c *Client) SetValue(ctx context.Context, domain, key string, value any) error {
	extra := map[string]any{"Value": value}
	if domain != "" {
		extra["Domain"] = domain
	}
	if key != "" {
		extra["Key"] = key
	}

	resp, err := c.call("SetValue", extra)
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return newErr(KindPlist, "SetValue failed: "+responseError(resp), nil)
	}
	return nil
}

// RemoveValue deletes the value at the given domain/key. It is
// destructive and has no precondition beyond an initialized client.
func (c *Client) RemoveValue(ctx context.Context, domain, key string) error {
	extra := map[string]any{}
	if domain != "" {
		extra["Domain"] = domain
	}
	if key != "" {
		extra["Key"] = key
	}

	resp, err := c.call("RemoveValue", extra)
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return newErr(KindPlist, "RemoveValue failed: "+responseError(resp), nil)
	}
	return nil
}

// EnterRecovery reboots the device into recovery mode. The current
// session is effectively terminated by the device as a side effect.
func (c *Client) EnterRecovery(ctx context.Context) error {
	resp, err := c.call("EnterRecovery", nil)
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return newErr(KindPlist, "EnterRecovery failed: "+responseError(resp), nil)
	}
	return nil
}

// Activate sends a session-scoped device commissioning request with the
// given activation record. It requires an active session.
func (c *Client) Activate(ctx context.Context, activationRecord map[string]any) error {
	c.mu.Lock()
	hasSession := c.hasSession
	c.mu.Unlock()
	if !hasSession {
		return ErrNoRunningSession
	}

	resp, err := c.call("Activate", map[string]any{"ActivationRecord": activationRecord})
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return newErr(KindActivationFailed, "Activate failed: "+responseError(resp), nil)
	}
	return nil
}

// Deactivate reverses Activate. It requires an active session.
func (c *Client) Deactivate(ctx context.Context) error {
	c.mu.Lock()
	hasSession := c.hasSession
	c.mu.Unlock()
	if !hasSession {
		return ErrNoRunningSession
	}

	resp, err := c.call("Deactivate", nil)
	if err != nil {
		return err
	}
	if !succeeded(resp) {
		return newErr(KindActivationFailed, "Deactivate failed: "+responseError(resp), nil)
	}
	return nil
}

// GetDeviceUUID is a convenience wrapper over GetValue(nil, "UniqueDeviceID").
func (c *Client) GetDeviceUUID(ctx context.Context) (string, error) {
	v, err := c.GetValue(ctx, "", "UniqueDeviceID")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// GetDevicePublicKey is a convenience wrapper over GetValue(nil, "DevicePublicKey").
func (c *Client) GetDevicePublicKey(ctx context.Context) ([]byte, error) {
	v, err := c.GetValue(ctx, "", "DevicePublicKey")
	if err != nil {
		return nil, err
	}
	switch pub := v.(type) {
	case []byte:
		return pub, nil
	case string:
		return []byte(pub), nil
	default:
		return nil, newErr(KindPlist, "DevicePublicKey missing or malformed", nil)
	}
}

// GetDeviceName is a convenience wrapper over GetValue(nil, "DeviceName").
func (c *Client) GetDeviceName(ctx context.Context) (string, error) {
	v, err := c.GetValue(ctx, "", "DeviceName")
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}
