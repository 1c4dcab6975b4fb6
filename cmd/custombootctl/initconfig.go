// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"customboot/internal/config"
	"customboot/internal/kernelstub"
)

// Overridable for tests.
var stubClient kernelstub.Client = kernelstub.ExecClient{}

func newInitConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Bootstrap the configuration from kernelstub",
		Long: `init-config queries kernelstub --print-config for the kernel image
directory, the EFI system partition path and the root filesystem id, derives
the ESP target directory from them, and persists the result. Run it once
before select or update, and again if kernelstub's configuration changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitConfig(cmd, opts)
		},
	}
}

func runInitConfig(cmd *cobra.Command, opts *rootOptions) error {
	if err := requireRoot(opts); err != nil {
		return err
	}

	log := newLogger(opts)

	bc, err := stubClient.PrintConfig()
	if err != nil {
		return err
	}
	cfg := config.FromBootConfig(bc)

	if opts.dryRun {
		b, err := toml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Would create %s and write %s:\n%s", cfg.ESPDir, opts.configPath, b)
		return nil
	}

	if err := os.MkdirAll(cfg.ESPDir, 0755); err != nil {
		return fmt.Errorf("cannot create ESP target directory: %w", err)
	}
	if err := config.Save(opts.configPath, cfg); err != nil {
		return err
	}
	log.Info().Str("path", opts.configPath).Msg("wrote configuration")
	fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s.\n", opts.configPath)
	return nil
}
