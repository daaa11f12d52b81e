// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package lockdown implements a client for a mobile device's lockdownd
// administrative service: a property-list request/response protocol over
// a device transport, the pairing and trust-establishment handshake, and
// the session lifecycle used to reach named services on the device.
package lockdown
