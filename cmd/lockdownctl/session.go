// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryTypeCmd = &cobra.Command{
	Use:   "query-type",
	Short: "Report the device's lockdown service type (normal boot vs. recovery)",
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

		typ, err := sess.client.QueryType(ctx)
		if err != nil {
			return err
		}
		fmt.Println(typ)
		return nil
	},
}

var startSessionCmd = &cobra.Command{
	Use:   "start-session",
	Short: "Open a lockdown session, upgrading to TLS if the device requests it",
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

		sessionID, tlsActive, err := sess.client.StartSession(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("session %s (tls=%v)\n", sessionID, tlsActive)
		return nil
	},
}

var stopSessionCmd = &cobra.Command{
	Use:   "stop-session",
	Short: "Open then immediately close a lockdown session (each invocation is a fresh process)",
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

		if _, err := sess.client.StopSession(ctx); err != nil {
			return err
		}
		fmt.Println("stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryTypeCmd, startSessionCmd, stopSessionCmd)
}
