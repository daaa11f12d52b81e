// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package certfab

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"
)

func generateRootIdentity(t *testing.T) Identity {
	t.Helper()
	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &rootKey.PublicKey, rootKey)
	if err != nil {
		t.Fatalf("create root cert: %v", err)
	}
	rootPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return Identity{
		RootKey:         rootKey,
		RootCertificate: rootPEM,
		HostCertificate: rootPEM, // stand-in; only its presence is checked here
	}
}

func generateDevicePublicKeyPEM(t *testing.T) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate device key: %v", err)
	}
	der := x509.MarshalPKCS1PublicKey(&key.PublicKey)
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: der})
}

func TestFabricateBindsDevicePublicKey(t *testing.T) {
	identity := generateRootIdentity(t)
	devicePubPEM := generateDevicePublicKeyPEM(t)

	deviceCertPEM, hostCertPEM, rootCertPEM, err := Fabricate(devicePubPEM, identity)
	if err != nil {
		t.Fatalf("Fabricate: %v", err)
	}
	if string(hostCertPEM) != string(identity.HostCertificate) {
		t.Fatal("host certificate not passed through unchanged")
	}
	if string(rootCertPEM) != string(identity.RootCertificate) {
		t.Fatal("root certificate not passed through unchanged")
	}

	block, _ := pem.Decode(deviceCertPEM)
	if block == nil {
		t.Fatal("device certificate is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("parse device certificate: %v", err)
	}
	if cert.IsCA {
		t.Fatal("device certificate must not be a CA")
	}
	if cert.SerialNumber.Sign() != 0 {
		t.Fatalf("serial = %v, want zero", cert.SerialNumber)
	}

	devBlock, _ := pem.Decode(devicePubPEM)
	wantPub, err := x509.ParsePKCS1PublicKey(devBlock.Bytes)
	if err != nil {
		t.Fatalf("parse expected device public key: %v", err)
	}
	gotPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("certificate public key is %T, want *rsa.PublicKey", cert.PublicKey)
	}
	if gotPub.N.Cmp(wantPub.N) != 0 || gotPub.E != wantPub.E {
		t.Fatal("device certificate public key does not match the device's reported public key")
	}
}

func TestFabricateDeterministicModuloNotBefore(t *testing.T) {
	identity := generateRootIdentity(t)
	devicePubPEM := generateDevicePublicKeyPEM(t)

	cert1PEM, _, _, err := Fabricate(devicePubPEM, identity)
	if err != nil {
		t.Fatalf("Fabricate (1): %v", err)
	}
	cert2PEM, _, _, err := Fabricate(devicePubPEM, identity)
	if err != nil {
		t.Fatalf("Fabricate (2): %v", err)
	}

	block1, _ := pem.Decode(cert1PEM)
	block2, _ := pem.Decode(cert2PEM)
	cert1, err := x509.ParseCertificate(block1.Bytes)
	if err != nil {
		t.Fatalf("parse cert1: %v", err)
	}
	cert2, err := x509.ParseCertificate(block2.Bytes)
	if err != nil {
		t.Fatalf("parse cert2: %v", err)
	}

	if cert1.Subject.String() != cert2.Subject.String() {
		t.Fatal("subject differs between fabrications")
	}
	if cert1.Issuer.String() != cert2.Issuer.String() {
		t.Fatal("issuer differs between fabrications")
	}
	if cert1.SerialNumber.Cmp(cert2.SerialNumber) != 0 {
		t.Fatal("serial differs between fabrications")
	}
	if cert1.NotAfter.Sub(cert1.NotBefore) != cert2.NotAfter.Sub(cert2.NotBefore) {
		t.Fatal("validity window length differs between fabrications")
	}
}

func TestFabricateRejectsIncompleteIdentity(t *testing.T) {
	devicePubPEM := generateDevicePublicKeyPEM(t)
	if _, _, _, err := Fabricate(devicePubPEM, Identity{}); err == nil {
		t.Fatal("expected an error for an incomplete host identity")
	}
}

func TestFabricateRejectsEmptyDeviceKey(t *testing.T) {
	identity := generateRootIdentity(t)
	if _, _, _, err := Fabricate(nil, identity); err == nil {
		t.Fatal("expected an error for an empty device public key")
	}
}
