// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package certfab fabricates the device certificate a host presents
// during pairing: an X.509 leaf certificate binding the device's RSA
// public key (as reported by lockdownd's DevicePublicKey value), signed
// by the host's root CA.
package certfab

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Identity bundles the host-side key material the fabricator signs with;
// it is obtained from the TrustStore's KeysAndCerts. HostKey is the
// host's own PEM-encoded private key: Fabricate never reads it (the
// device certificate is signed with RootKey), it is carried here only
// so callers that need the host's TLS identity don't need a second
// trust-store round trip.
type Identity struct {
	RootKey         crypto.Signer
	RootCertificate []byte // PEM
	HostCertificate []byte // PEM, certificate only, never the key
	HostKey         []byte // PEM, host private key
}

// ErrEmptyDeviceKey is returned by Fabricate when devicePublicKeyPEM is
// empty — an InvalidArg condition at the caller's API boundary.
var ErrEmptyDeviceKey = errors.New("certfab: empty device public key")

// ErrIncompleteIdentity is returned by Fabricate when identity is
// missing required key or certificate material — an InvalidConf
// condition: the trust store failed to supply a complete identity.
var ErrIncompleteIdentity = errors.New("certfab: incomplete host identity")

// validity is the device certificate's lifetime: ten years from issuance,
// matching the original design's fixed window.
const validity = 10 * 365 * 24 * time.Hour

// Fabricate decodes devicePublicKeyPEM (PKCS#1 RSAPublicKey, PEM header
// "RSA PUBLIC KEY"), builds a device certificate binding it and signed by
// identity's root key, and returns the device/host/root certificates as
// PEM. The operation performs no I/O and is pure with respect to device
// state.
func Fabricate(devicePublicKeyPEM []byte, identity Identity) (deviceCertPEM, hostCertPEM, rootCertPEM []byte, err error) {
	if len(devicePublicKeyPEM) == 0 {
		return nil, nil, nil, ErrEmptyDeviceKey
	}
	if identity.RootKey == nil || len(identity.RootCertificate) == 0 || len(identity.HostCertificate) == 0 {
		return nil, nil, nil, ErrIncompleteIdentity
	}

	devicePub, err := parseDevicePublicKey(devicePublicKeyPEM)
	if err != nil {
		return nil, nil, nil, err
	}

	rootCert, err := parseCertificatePEM(identity.RootCertificate)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("certfab: parse root certificate: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(0),
		Subject:               pkix.Name{CommonName: "Device Certificate"},
		NotBefore:             now,
		NotAfter:              now.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, devicePub, identity.RootKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("certfab: create certificate: %w", err)
	}

	deviceCertPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return deviceCertPEM, identity.HostCertificate, identity.RootCertificate, nil
}

// parseDevicePublicKey decodes the PEM-wrapped PKCS#1 RSAPublicKey
// lockdownd returns for the DevicePublicKey value.
//
// The original design constructs a throwaway RSA private key around the
// recovered (modulus, exponent) pair purely so its X.509 builder — which
// requires a full keypair handle — will accept the public half. Go's
// x509.CreateCertificate takes a bare public key, so that step has no
// Go-idiomatic equivalent and is skipped.
func parseDevicePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("certfab: device public key is not valid PEM")
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("certfab: parse PKCS#1 device public key: %w", err)
	}
	return pub, nil
}

func parseCertificatePEM(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("certfab: not valid PEM")
	}
	return x509.ParseCertificate(block.Bytes)
}
