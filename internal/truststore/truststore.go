// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package truststore persists the host's pairing identity: the host's
// own root/host key pair and certificates, and the set of devices that
// have completed pairing, each keyed by device UUID and holding the
// device's PEM public key.
//
// GormStore is the only implementation; it satisfies the lockdown
// package's TrustStore contract by method set, not by explicit
// assertion, so this package never imports the public lockdown package.
package truststore
