// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	valueDomain string
)

var getValueCmd = &cobra.Command{
	Use:   "get-value <key>",
	Short: "Read a domain/key value from the device",
	Args:  cobra.ExactArgs(1),
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

		v, err := sess.client.GetValue(ctx, valueDomain, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%v\n", v)
		return nil
	},
}

var setValueCmd = &cobra.Command{
	Use:   "set-value <key> <value>",
	Short: "Write a domain/key value to the device",
	Args:  cobra.ExactArgs(2),
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

		if err := sess.client.SetValue(ctx, valueDomain, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("set")
		return nil
	},
}

var removeValueCmd = &cobra.Command{
	Use:   "remove-value <key>",
	Short: "Delete a domain/key value on the device",
	Args:  cobra.ExactArgs(1),
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

		if err := sess.client.RemoveValue(ctx, valueDomain, args[0]); err != nil {
			return err
		}
		fmt.Println("removed")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{getValueCmd, setValueCmd, removeValueCmd} {
		c.Flags().StringVar(&valueDomain, "domain", "", "lockdown domain to scope the key to (default root domain)")
	}
	rootCmd.AddCommand(getValueCmd, setValueCmd, removeValueCmd)
}
