// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the prism CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prism",
		Short: "prism - an intercepting MUD proxy",
		Long: `prism sits between your MUD and your clients. It parses the
upstream stream into line records, runs them through an in-process
plugin fabric (events, triggers, timers, commands, settings), and
fans the result out to any number of connected clients.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())

	return cmd
}
