// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"sort"

	"github.com/joeycumines/go-apphost/bundle"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <bundle-or-binary>",
		Short: "List a bundle's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bundle.Open(args[0])
			if err != nil {
				return err
			}
			defer b.Close()

			out := cmd.OutOrStdout()
			if e := b.Entry(); e != "" {
				fmt.Fprintf(out, "entry: %s\n", e)
			}

			paths := b.Paths()
			sort.Strings(paths)
			for _, p := range paths {
				e, _ := b.EntryFor(p)
				fmt.Fprintf(out, "%10d  %s\n", e.Length, p)
			}
			return nil
		},
	}
	return cmd
}
