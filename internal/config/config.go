// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package config holds the mapstructure-tagged configuration the
// lockdownctl CLI binds via viper, plus the validation each section
// performs before the client is constructed.
package config

import (
	"errors"
	"log/slog"

	"github.com/lockdownd-go/lockdownd/internal/truststore"
)

// ClientConfig is the top-level configuration a lockdownctl invocation
// reads from its YAML config file (merged with bound CLI flags).
type ClientConfig struct {
	Log    LogConfig                 `mapstructure:"log"`
	DB     truststore.DatabaseConfig `mapstructure:"db"`
	Device DeviceConfig              `mapstructure:"device"`
	Label  string                    `mapstructure:"label"`
}

// LogConfig configures the process-wide slog handler.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	JSON  bool   `mapstructure:"json"`  // plain devlog console output by default
}

// DeviceConfig addresses the device to connect to.
type DeviceConfig struct {
	Address string `mapstructure:"address"` // host:port of the usbmuxd relay endpoint
}

// Validate checks every section and fills in the same defaults the
// teacher's DatabaseConfig/HTTPConfig pair apply when a field is left
// blank.
func (c *ClientConfig) Validate() error {
	slog.Debug("validating client configuration", "device", c.Device.Address, "db_type", c.DB.Type)

	if c.DB.Type == "" {
		c.DB.Type = "sqlite"
	}
	if c.DB.DSN == "" {
		slog.Error("database DSN is required but not provided")
		return errors.New("client configuration error: db.dsn is required")
	}
	if c.Device.Address == "" {
		slog.Error("device address is required but not provided")
		return errors.New("client configuration error: device.address is required")
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	return nil
}
