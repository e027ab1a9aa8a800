// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Endnode - Escape Room End Node
//
// An end node and coordinator toolkit for the escape room link protocol:
// run simulated end nodes, command and monitor them, and simulate a whole
// room in-process.

package main

import (
	"os"

	"github.com/Thermoquad/endnode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
