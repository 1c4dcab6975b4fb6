// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"customboot/internal/config"
	"customboot/internal/kernelmgr"
)

// Overridable for tests.
var (
	geteuid    = unix.Geteuid
	isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
)

type rootOptions struct {
	configPath string
	dryRun     bool
	verbose    bool
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:     "custombootctl",
		Short:   "Manage the custom boot kernel on kernelstub systems",
		Long: `custombootctl points the vmlinuz.custom and initrd.img.custom symlinks at an
installed kernel and mirrors the selected images onto the EFI system
partition, where the boot manager picks them up under fixed names.

Running custombootctl with no subcommand is the same as running select.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, opts)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "configuration file")
	root.PersistentFlags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "report actions without touching the filesystem")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newSelectCmd(opts))
	root.AddCommand(newUpdateCmd(opts))
	root.AddCommand(newInitConfigCmd(opts))

	return root
}

func newLogger(opts *rootOptions) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	log := zerolog.New(output).With().Timestamp().Logger()
	if opts.verbose {
		return log.Level(zerolog.DebugLevel)
	}
	return log.Level(zerolog.InfoLevel)
}

// requireRoot fails fast before any mutation is attempted. Dry runs are
// allowed for everybody so operators can preview without sudo.
func requireRoot(opts *rootOptions) error {
	if opts.dryRun {
		return nil
	}
	if geteuid() != 0 {
		return fmt.Errorf("this operation modifies the boot configuration and must be run as root (or use --dry-run)")
	}
	return nil
}

// newKernelManager loads the persisted configuration and builds the engine.
func newKernelManager(opts *rootOptions, log zerolog.Logger) (*kernelmgr.KernelManager, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	return kernelmgr.NewKernelManager(cfg.BootDir, cfg.ESPDir, log, opts.dryRun)
}
