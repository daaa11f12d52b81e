// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package lockdown

import (
	"context"

	"github.com/lockdownd-go/lockdownd/internal/certfab"
	"github.com/lockdownd-go/lockdownd/internal/transport"
)

// DeviceConnection is the external device transport a Client is built
// over: a reliable, ordered byte stream (in practice, a USB-mux-relayed
// connection to the device's lockdownd port). The client never performs
// the multiplexing handshake itself — it is handed an already-connected
// DeviceConnection.
type DeviceConnection = transport.DeviceConnection

// Identity is the host's signing key material, as returned by a
// TrustStore's KeysAndCerts.
type Identity = certfab.Identity

// TrustStore is the host-side persistence contract: host identity, host
// and root key/cert material, and the set of devices trusted so far,
// each keyed by device UUID.
type TrustStore interface {
	// HostID returns the host's persisted HostID and true, or ("", false,
	// nil) if no host identity has been established yet.
	HostID(ctx context.Context) (string, bool, error)

	// HasDevicePublicKey reports whether uuid already has a trusted
	// public key on file.
	HasDevicePublicKey(ctx context.Context, uuid string) (bool, error)

	// SetDevicePublicKey records (or replaces) the PEM public key trusted
	// for a device UUID.
	SetDevicePublicKey(ctx context.Context, uuid string, pem []byte) error

	// RemoveDevicePublicKey deletes a device's trusted public key.
	RemoveDevicePublicKey(ctx context.Context, uuid string) error

	// KeysAndCerts returns the host's signing identity.
	KeysAndCerts(ctx context.Context) (Identity, error)

	// CertsAsPEM returns the host's root and host certificates as PEM.
	CertsAsPEM(ctx context.Context) (rootPEM, hostPEM []byte, err error)
}
