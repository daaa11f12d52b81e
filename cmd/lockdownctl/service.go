// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var startServiceCmd = &cobra.Command{
	Use:   "start-service <name>",
	Short: "Start a named service channel within the current session and print its port",
	Args:  cobra.ExactArgs(1),
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

		port, err := sess.client.StartService(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(port)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startServiceCmd)
}
