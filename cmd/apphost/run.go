// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-apphost/bundle"
	"github.com/joeycumines/go-apphost/gojaengine"
	"github.com/joeycumines/go-apphost/host"
	"github.com/joeycumines/go-apphost/internal/config"
	"github.com/joeycumines/go-apphost/internal/crash"
	"github.com/joeycumines/go-apphost/internal/hostlog"
	"github.com/spf13/cobra"
)

func newRunCmd(configPath *string) *cobra.Command {
	var (
		bundlePath    string
		workers       int
		frameInterval time.Duration
		hotReload     bool
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "run [script]",
		Short: "Run a script (or the bundle's entry script)",
		Long: `Run executes a script on the frame scheduler until it quits or idles out.

The script argument is resolved through the virtual filesystem: an embedded
or sidecar bundle is consulted first, then the real filesystem. With no
argument the bundle's declared entry script runs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			// Flags take precedence over file configuration.
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("frame-interval") {
				cfg.FrameIntervalMs = int(frameInterval / time.Millisecond)
			}
			if cmd.Flags().Changed("hot-reload") {
				cfg.HotReload = hotReload
			}
			if cmd.Flags().Changed("bundle") {
				cfg.Bundle = bundlePath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			level, err := hostlog.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			log := hostlog.New(os.Stderr, level)

			var b *bundle.Bundle
			if cfg.Bundle != "" {
				b, err = bundle.Open(cfg.Bundle)
			} else {
				exe, exeErr := os.Executable()
				if exeErr != nil {
					return exeErr
				}
				b, err = bundle.Discover(exe)
			}
			if err != nil {
				return err
			}
			if b != nil {
				defer b.Close()
				log.Info().
					Str("origin", b.Origin()).
					Int("files", b.Len()).
					Log("bundle attached")
			}

			entry := ""
			if len(args) == 1 {
				entry = args[0]
			} else if b != nil {
				entry = b.Entry()
			}
			if entry == "" {
				return fmt.Errorf("no script given and no bundle entry declared")
			}

			engine := gojaengine.New()
			h := host.New(engine,
				host.WithLogger(log),
				host.WithBundle(b),
				host.WithWorkers(cfg.Workers),
				host.WithFrameInterval(time.Duration(cfg.FrameIntervalMs)*time.Millisecond),
				host.WithHotReload(cfg.HotReload),
			)

			adapter, err := gojaengine.NewAdapter(h, engine, log)
			if err != nil {
				return err
			}
			if err := adapter.Bind(); err != nil {
				return err
			}

			if _, err := h.LoadScript(entry); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sig := make(chan os.Signal, 1)
			crash.Notify(sig)
			go func() {
				<-sig
				cancel()
			}()

			return h.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&bundlePath, "bundle", "", "explicit bundle path (skips discovery)")
	cmd.Flags().IntVar(&workers, "workers", 4, "background worker pool size")
	cmd.Flags().DurationVar(&frameInterval, "frame-interval", 16*time.Millisecond, "animation frame interval")
	cmd.Flags().BoolVar(&hotReload, "hot-reload", false, "reload the entry script when it changes on disk")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (trace..crit)")

	return cmd
}
