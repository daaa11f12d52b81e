// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Command lockdownctl drives a paired device's administrative service
// from the command line: pairing, session management, value access and
// the handful of session-scoped operations a host is allowed to invoke.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
