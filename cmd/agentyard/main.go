// Copyright (C) 2026 Noldarim
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command agentyard is the CLI front-end over internal/cli's cobra
// surface, which itself delegates every subcommand to internal/app's
// composition root.
package main

import (
	"os"

	"github.com/agentyard/agentyard/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
