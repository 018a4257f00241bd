// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joeycumines/go-apphost/bundle"
	"github.com/spf13/cobra"
)

func newPackCmd() *cobra.Command {
	var (
		out      string
		appendTo string
		entry    string
	)

	cmd := &cobra.Command{
		Use:   "pack [files or directories]...",
		Short: "Build a script bundle",
		Long: `Pack collects files into a bundle container.

Directories are walked recursively; file paths inside the container are the
given paths, normalized. With --append-to the bundle is appended to an
existing binary, producing a self-contained executable that discovers its
own payload at startup.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (out == "") == (appendTo == "") {
				return fmt.Errorf("exactly one of --out or --append-to is required")
			}

			w := bundle.NewWriter()
			for _, arg := range args {
				if err := addPath(w, arg); err != nil {
					return err
				}
			}
			if entry != "" {
				w.SetEntry(entry)
			}

			if appendTo != "" {
				if err := w.AppendTo(appendTo); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "appended %d files to %s\n", w.Len(), appendTo)
				return nil
			}

			if err := w.WriteFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d files to %s\n", w.Len(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "output bundle path")
	cmd.Flags().StringVar(&appendTo, "append-to", "", "append the bundle to an existing binary")
	cmd.Flags().StringVar(&entry, "entry", "", "entry script path inside the bundle")

	return cmd
}

func addPath(w *bundle.Writer, p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return w.Add(p, data)
	}
	return filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return w.Add(filepath.ToSlash(path), data)
	})
}
