// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import (
	"context"
	"errors"

	"github.com/lockdownd-go/lockdownd/internal/certfab"
)

// Pair establishes trust with the device: fabricates a device
// certificate around the device's reported public key, signs it with
// the host's root CA, and sends it in a PairRecord. On success the
// device's public key is recorded in the trust store. Calling Pair on
// an already-paired device still succeeds. The HostID sent is read from
// the trust store; use PairWithHostID to supply one explicitly.
func (c *Client) Pair(ctx context.Context) error {
	return c.pairVerb(ctx, "Pair", "")
}

// PairWithHostID is Pair, but uses hostID instead of reading one from
// the trust store when hostID is non-empty.
func (c *Client) PairWithHostID(ctx context.Context, hostID string) error {
	return c.pairVerb(ctx, "Pair", hostID)
}

// ValidatePair re-affirms trust with an already-paired device. It is
// idempotent: calling it any number of times on an already-paired
// device leaves the trust store in the same state and always refreshes
// the host-side record. The HostID sent is read from the trust store;
// use ValidatePairWithHostID to supply one explicitly.
func (c *Client) ValidatePair(ctx context.Context) error {
	return c.pairVerb(ctx, "ValidatePair", "")
}

// ValidatePairWithHostID is ValidatePair, but uses hostID instead of
// reading one from the trust store when hostID is non-empty.
func (c *Client) ValidatePairWithHostID(ctx context.Context, hostID string) error {
	return c.pairVerb(ctx, "ValidatePair", hostID)
}

// Unpair removes trust with the device. On success the device's public
// key is removed from the trust store. The HostID sent is read from the
// trust store; use UnpairWithHostID to supply one explicitly.
func (c *Client) Unpair(ctx context.Context) error {
	return c.pairVerb(ctx, "Unpair", "")
}

// UnpairWithHostID is Unpair, but uses hostID instead of reading one
// from the trust store when hostID is non-empty.
func (c *Client) UnpairWithHostID(ctx context.Context, hostID string) error {
	return c.pairVerb(ctx, "Unpair", hostID)
}

// pairVerb is the shared implementation behind Pair, ValidatePair and
// Unpair: they differ only in verb name and in what happens to the
// trust store on success. hostIDOverride, when non-empty, is sent
// instead of the trust store's HostID and skips reading it entirely,
// per the caller-supplied-host_id option lockdownd_pair/
// lockdownd_validate_pair/lockdownd_unpair all accept.
func (c *Client) pairVerb(ctx context.Context, verb, hostIDOverride string) error {
	uuid, err := c.ensureDeviceUUID(ctx)
	if err != nil {
		return err
	}

	devicePubKeyPEM, err := c.GetDevicePublicKey(ctx)
	if err != nil {
		return newErr(KindInvalidArg, "fetch device public key", err)
	}
	if len(devicePubKeyPEM) == 0 {
		return newErr(KindInvalidArg, "device returned an empty public key", nil)
	}

	identity, err := c.store.KeysAndCerts(ctx)
	if err != nil {
		return newErr(KindInvalidConf, "load host identity", err)
	}

	deviceCertPEM, hostCertPEM, rootCertPEM, err := certfab.Fabricate(devicePubKeyPEM, identity)
	if err != nil {
		return mapFabricateErr(err)
	}

	hostID := hostIDOverride
	if hostID == "" {
		storedHostID, existed, err := c.store.HostID(ctx)
		if err != nil {
			return newErr(KindInvalidConf, "read host id", err)
		}
		if !existed || storedHostID == "" {
			return newErr(KindInvalidConf, "no host id in trust store", nil)
		}
		hostID = storedHostID
	}

	pairRecord := map[string]any{
		"DeviceCertificate": deviceCertPEM,
		"HostCertificate":   hostCertPEM,
		"RootCertificate":   rootCertPEM,
		"HostID":            hostID,
	}

	resp, err := c.call(verb, map[string]any{"PairRecord": pairRecord})
	if err != nil {
		return err
	}

	if succeeded(resp) {
		if verb == "Unpair" {
			if err := c.store.RemoveDevicePublicKey(ctx, uuid); err != nil {
				// The device is already unpaired; surface the store error but
				// do not treat this as a protocol failure.
				return newErr(KindInvalidConf, "remove device trust record", err)
			}
			return nil
		}
		if err := c.store.SetDevicePublicKey(ctx, uuid, devicePubKeyPEM); err != nil {
			// Ordering invariant: the device already confirmed success. A
			// local persistence failure does not roll back the device side;
			// the next ValidatePair repairs the store.
			return newErr(KindInvalidConf, "persist device trust record", err)
		}
		return nil
	}

	switch responseError(resp) {
	case "PasswordProtected":
		return newErr(KindPasswordProtected, verb+" refused: device is password protected", nil)
	case "InvalidHostID":
		return newErr(KindInvalidHostID, verb+" refused: invalid host id", nil)
	default:
		return newErr(KindPairingFailed, verb+" failed", nil)
	}
}

// mapFabricateErr classifies a certfab.Fabricate error into the Kind
// spec.md §4.4 assigns it: InvalidArg for a malformed/empty caller
// input, InvalidConf for a trust store that failed to supply a complete
// identity, SslError for everything else (certificate parsing or
// signing failures).
func mapFabricateErr(err error) error {
	switch {
	case errors.Is(err, certfab.ErrEmptyDeviceKey):
		return newErr(KindInvalidArg, "fabricate device certificate", err)
	case errors.Is(err, certfab.ErrIncompleteIdentity):
		return newErr(KindInvalidConf, "fabricate device certificate", err)
	default:
		return newErr(KindSSL, "fabricate device certificate", err)
	}
}

func (c *Client) ensureDeviceUUID(ctx context.Context) (string, error) {
	c.mu.Lock()
	uuid := c.deviceUUID
	c.mu.Unlock()
	if uuid != "" {
		return uuid, nil
	}

	uuid, err := c.getDeviceUUID(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.deviceUUID = uuid
	c.mu.Unlock()
	return uuid, nil
}
