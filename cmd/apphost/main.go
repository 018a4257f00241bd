// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command apphost runs browser-style scripts natively: a cooperative frame
// scheduler over a Goja runtime, with timers, animation frames, background
// I/O, an embedded bundle VFS, and hot reload.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "apphost",
		Short:         "Native host for browser-style scripts",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration file")

	cmd.AddCommand(
		newRunCmd(&configPath),
		newPackCmd(),
		newInspectCmd(),
	)

	return cmd
}
