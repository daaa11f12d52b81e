// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package truststore

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"database/sql"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lockdownd-go/lockdownd/internal/certfab"
)

// DatabaseConfig selects the gorm dialect and DSN GormStore opens.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// hostValidity and rootValidity mirror the original design's long-lived,
// effectively-permanent host/root certificates: generated once per
// install, reused for the life of the trust store.
const (
	rootValidity = 20 * 365 * 24 * time.Hour
	hostValidity = 20 * 365 * 24 * time.Hour
)

// GormStore is a gorm-backed TrustStore, over sqlite (the default,
// single-host deployment) or postgres (a shared/fleet trust store).
type GormStore struct {
	db *gorm.DB

	mu       sync.RWMutex
	identity *hostIdentity // cached, bootstrapped lazily
}

// Open opens (and migrates) a GormStore for the given database
// configuration.
func Open(cfg DatabaseConfig) (*GormStore, error) {
	dialect := strings.ToLower(cfg.Type)
	if cfg.DSN == "" {
		return nil, fmt.Errorf("truststore: dsn is required")
	}

	var dialector gorm.Dialector
	switch dialect {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("truststore: unsupported database type %q (must be sqlite or postgres)", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("truststore: open: %w", err)
	}

	if dialect == "sqlite" || dialect == "" {
		var sqlDB *sql.DB
		if sqlDB, err = db.DB(); err == nil {
			_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON")
		}
	}

	if err := db.AutoMigrate(&hostIdentity{}, &deviceTrust{}); err != nil {
		return nil, fmt.Errorf("truststore: migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

// HostID returns the persisted HostID and true, bootstrapping the host
// identity on first call if none exists.
func (s *GormStore) HostID(ctx context.Context) (string, bool, error) {
	identity, _, err := s.ensureIdentity(ctx)
	if err != nil {
		return "", false, err
	}
	return identity.HostID, true, nil
}

// HasDevicePublicKey reports whether uuid already has a trusted key on
// file.
func (s *GormStore) HasDevicePublicKey(ctx context.Context, deviceUUID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&deviceTrust{}).Where("device_uuid = ?", deviceUUID).Count(&count).Error; err != nil {
		return false, fmt.Errorf("truststore: query device trust: %w", err)
	}
	return count > 0, nil
}

// SetDevicePublicKey records (or replaces) the trusted public key for a
// device UUID.
func (s *GormStore) SetDevicePublicKey(ctx context.Context, deviceUUID string, pemBytes []byte) error {
	if deviceUUID == "" {
		return fmt.Errorf("truststore: empty device uuid")
	}
	if len(pemBytes) == 0 {
		return fmt.Errorf("truststore: empty device public key")
	}

	row := deviceTrust{DeviceUUID: deviceUUID, PublicKey: pemBytes}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(&row).Error
	})
	if err != nil {
		return fmt.Errorf("truststore: save device trust: %w", err)
	}
	return nil
}

// RemoveDevicePublicKey deletes a device's trusted public key. Removing a
// UUID that was never trusted is not an error.
func (s *GormStore) RemoveDevicePublicKey(ctx context.Context, deviceUUID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Where("device_uuid = ?", deviceUUID).Delete(&deviceTrust{}).Error
	})
	if err != nil {
		return fmt.Errorf("truststore: delete device trust: %w", err)
	}
	return nil
}

// KeysAndCerts returns the host's signing identity, bootstrapping it on
// first use.
func (s *GormStore) KeysAndCerts(ctx context.Context) (certfab.Identity, error) {
	identity, _, err := s.ensureIdentity(ctx)
	if err != nil {
		return certfab.Identity{}, err
	}

	rootKey, err := x509.ParsePKCS1PrivateKey(identity.RootKeyDER)
	if err != nil {
		return certfab.Identity{}, fmt.Errorf("truststore: parse root key: %w", err)
	}

	return certfab.Identity{
		RootKey:         rootKey,
		RootCertificate: identity.RootCertPEM,
		HostCertificate: identity.HostCertPEM,
		HostKey:         pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: identity.HostKeyDER}),
	}, nil
}

// CertsAsPEM returns the host's root and host certificates without
// exposing the signing key.
func (s *GormStore) CertsAsPEM(ctx context.Context) (rootPEM, hostPEM []byte, err error) {
	identity, _, err := s.ensureIdentity(ctx)
	if err != nil {
		return nil, nil, err
	}
	return identity.RootCertPEM, identity.HostCertPEM, nil
}

// ensureIdentity returns the cached host identity, loading it from the
// database or bootstrapping a fresh one if the table is empty. The
// second return value is true when a pre-existing identity was found.
func (s *GormStore) ensureIdentity(ctx context.Context) (*hostIdentity, bool, error) {
	s.mu.RLock()
	if s.identity != nil {
		identity := s.identity
		s.mu.RUnlock()
		return identity, true, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity != nil {
		return s.identity, true, nil
	}

	var existing hostIdentity
	err := s.db.WithContext(ctx).First(&existing, "id = ?", 1).Error
	switch {
	case err == nil:
		s.identity = &existing
		return s.identity, true, nil
	case err != gorm.ErrRecordNotFound:
		return nil, false, fmt.Errorf("truststore: load host identity: %w", err)
	}

	bootstrapped, err := bootstrapIdentity()
	if err != nil {
		return nil, false, fmt.Errorf("truststore: bootstrap host identity: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(bootstrapped).Error
	})
	if err != nil {
		return nil, false, fmt.Errorf("truststore: persist host identity: %w", err)
	}

	s.identity = bootstrapped
	return s.identity, false, nil
}

// bootstrapIdentity generates a fresh root key/certificate and a host
// leaf certificate signed by it, the one-time setup a freshly installed
// host performs before it can pair with any device.
func bootstrapIdentity() (*hostIdentity, error) {
	rootKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate root key: %w", err)
	}

	now := time.Now()
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "lockdownd-go Root CA"},
		NotBefore:             now,
		NotAfter:              now.Add(rootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("create root certificate: %w", err)
	}
	rootPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER})
	rootCert, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("reparse root certificate: %w", err)
	}

	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	hostTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "lockdownd-go Host"},
		NotBefore:             now,
		NotAfter:              now.Add(hostValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}
	hostDER, err := x509.CreateCertificate(rand.Reader, hostTemplate, rootCert, &hostKey.PublicKey, rootKey)
	if err != nil {
		return nil, fmt.Errorf("create host certificate: %w", err)
	}

	hostKeyDER, err := x509.MarshalPKCS8PrivateKey(hostKey)
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}
	hostCertPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: hostDER})

	return &hostIdentity{
		ID:          1,
		HostID:      uuid.New().String(),
		RootKeyDER:  x509.MarshalPKCS1PrivateKey(rootKey),
		RootCertPEM: rootPEM,
		HostKeyDER:  hostKeyDER,
		HostCertPEM: hostCertPEM,
	}, nil
}
