// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var activationRecordPath string

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate the device using a JSON-encoded activation record",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if activationRecordPath == "" {
			return fmt.Errorf("lockdownctl: --record is required")
		}
		raw, err := os.ReadFile(activationRecordPath)
		if err != nil {
			return fmt.Errorf("lockdownctl: reading activation record: %w", err)
		}
		var record map[string]any
		if err := json.Unmarshal(raw, &record); err != nil {
			return fmt.Errorf("lockdownctl: parsing activation record: %w", err)
		}

		ctx := cmd.Context()
		sess, err := newSession(ctx, true)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		if err := sess.client.Activate(ctx, record); err != nil {
			return err
		}
		fmt.Println("activated")
		return nil
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate the device",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := newSession(ctx, true)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		if err := sess.client.Deactivate(ctx); err != nil {
			return err
		}
		fmt.Println("deactivated")
		return nil
	},
}

var enterRecoveryCmd = &cobra.Command{
	Use:   "enter-recovery",
	Short: "Reboot the device into recovery mode",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sess, err := newSession(ctx, false)
		if err != nil {
			return err
		}
		defer sess.Close(ctx)

		if err := sess.client.EnterRecovery(ctx); err != nil {
			return err
		}
		fmt.Println("entering recovery")
		return nil
	},
}

func init() {
	activateCmd.Flags().StringVar(&activationRecordPath, "record", "", "path to a JSON-encoded activation record")
	rootCmd.AddCommand(activateCmd, deactivateCmd, enterRecoveryCmd)
}
