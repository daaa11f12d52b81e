// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package truststore

import "time"

// hostIdentity is the singleton row holding the host's own pairing
// identity. Exactly one row exists, pinned at ID 1.
type hostIdentity struct {
	ID int `gorm:"primaryKey;autoIncrement:false"`

	HostID string `gorm:"type:text;not null;uniqueIndex"`

	RootKeyDER  []byte `gorm:"type:blob;not null"`
	RootCertPEM []byte `gorm:"type:blob;not null"`
	HostKeyDER  []byte `gorm:"type:blob;not null"`
	HostCertPEM []byte `gorm:"type:blob;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime:milli"`
}

func (hostIdentity) TableName() string { return "host_identity" }

// deviceTrust is one device's trusted public key, recorded once pairing
// completes and removed on Unpair.
type deviceTrust struct {
	DeviceUUID string `gorm:"type:text;primaryKey"`
	PublicKey  []byte `gorm:"type:blob;not null"`

	CreatedAt time.Time `gorm:"autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:milli"`
}

func (deviceTrust) TableName() string { return "device_trust" }
