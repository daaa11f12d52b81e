// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lockdownd-go/lockdownd/internal/config"
	"github.com/lockdownd-go/lockdownd/internal/logging"
	"github.com/lockdownd-go/lockdownd/internal/transport"
	"github.com/lockdownd-go/lockdownd/internal/truststore"
	"github.com/lockdownd-go/lockdownd/lockdown"
)

var (
	cfgFile string
	appConf config.ClientConfig
)

var rootCmd = &cobra.Command{
	Use:   "lockdownctl",
	Short: "Talk to a device's administrative service over the lockdown protocol",
	Long: `lockdownctl pairs with, and issues administrative requests to, a
device reachable over a muxed lockdown connection: pairing, session
management, value access, and the session-scoped operations (service
start, activation, recovery) a trusted host is allowed to invoke.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config `file` (default ./lockdownctl.yaml)")
	rootCmd.PersistentFlags().String("label", "", "advisory client identifier sent with every request")
	rootCmd.PersistentFlags().String("device-address", "", "host:port of the device's relayed lockdown port")
	rootCmd.PersistentFlags().String("db-dsn", "lockdownctl.db", "trust store data source name")
	rootCmd.PersistentFlags().String("db-type", "sqlite", "trust store dialect (sqlite, postgres)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit structured JSON logs instead of console output")

	_ = bindFlags(rootCmd)
}

// bindFlags binds every persistent flag on cmd to the equivalently named
// viper key, mirroring the teacher's CLI binding shape.
func bindFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.PersistentFlags())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lockdownctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // absence of a config file is not an error; flags/env still apply
}

// loadConfig merges the bound flags, environment and config file into
// appConf and validates it. It is called from each subcommand's
// PreRunE rather than once globally, since cobra only finishes parsing
// persistent flags once the leaf command's PreRunE chain is reached.
func loadConfig(cmd *cobra.Command) error {
	viper.Set("device.address", viperFlagOr(cmd, "device-address", viper.GetString("device.address")))
	viper.Set("db.dsn", viperFlagOr(cmd, "db-dsn", viper.GetString("db.dsn")))
	viper.Set("db.type", viperFlagOr(cmd, "db-type", viper.GetString("db.type")))
	viper.Set("log.level", viperFlagOr(cmd, "log-level", viper.GetString("log.level")))
	viper.Set("label", viperFlagOr(cmd, "label", viper.GetString("label")))
	if cmd.Flags().Changed("log-json") {
		v, _ := cmd.Flags().GetBool("log-json")
		viper.Set("log.json", v)
	}

	if err := viper.Unmarshal(&appConf); err != nil {
		return fmt.Errorf("lockdownctl: parsing configuration: %w", err)
	}
	if err := appConf.Validate(); err != nil {
		return err
	}

	logging.Setup(appConf.Log.Level, appConf.Log.JSON)
	return nil
}

// viperFlagOr returns the flag's string value if the user explicitly set
// it; otherwise existing (the config-file or env value already in viper)
// if that is non-empty; otherwise the flag's default.
func viperFlagOr(cmd *cobra.Command, name, existing string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	if existing != "" {
		return existing
	}
	v, _ := cmd.Flags().GetString(name)
	return v
}

// session bundles the resources every subcommand needs: a trust store,
// a dialed connection, and the client built over them. Close releases
// both the client's handshake-acquired state (if any) and the
// underlying connection.
type session struct {
	store  *truststore.GormStore
	conn   *transport.NetConn
	client *lockdown.Client
}

func (s *session) Close(ctx context.Context) {
	if s.client != nil {
		s.client.Free(ctx)
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// newSession opens the trust store and dials the device. When
// withHandshake is true the full QueryType/Pair/ValidatePair/StartSession
// sequence runs before returning, as required by operations that need an
// active session.
func newSession(ctx context.Context, withHandshake bool) (*session, error) {
	store, err := truststore.Open(appConf.DB)
	if err != nil {
		return nil, fmt.Errorf("lockdownctl: opening trust store: %w", err)
	}

	conn, err := transport.Dial(appConf.Device.Address)
	if err != nil {
		return nil, fmt.Errorf("lockdownctl: dialing device: %w", err)
	}

	var label *string
	if appConf.Label != "" {
		label = &appConf.Label
	}

	if !withHandshake {
		client := lockdown.New(conn, store)
		client.SetLabel(label)
		return &session{store: store, conn: conn, client: client}, nil
	}

	client, err := lockdown.NewWithHandshake(ctx, conn, store, appConf.Label)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("lockdownctl: handshake: %w", err)
	}
	return &session{store: store, conn: conn, client: client}, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
