// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with the device, fabricating host/device certificates on first trust",
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

		if err := sess.client.Pair(ctx); err != nil {
			return err
		}
		fmt.Println("paired")
		return nil
	},
}

var validatePairCmd = &cobra.Command{
	Use:   "validate-pair",
	Short: "Confirm the device still trusts this host's stored certificates",
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

		if err := sess.client.ValidatePair(ctx); err != nil {
			return err
		}
		fmt.Println("validated")
		return nil
	},
}

var unpairCmd = &cobra.Command{
	Use:   "unpair",
	Short: "Remove this host's trust relationship with the device",
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

		if err := sess.client.Unpair(ctx); err != nil {
			return err
		}
		fmt.Println("unpaired")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pairCmd, validatePairCmd, unpairCmd)
}
