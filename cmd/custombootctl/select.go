// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"customboot/internal/kernelmgr"
)

func newSelectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select",
		Short: "Interactively choose the custom kernel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd, opts)
		},
	}
}

func runSelect(cmd *cobra.Command, opts *rootOptions) error {
	if err := requireRoot(opts); err != nil {
		return err
	}
	if !isTerminal() {
		return fmt.Errorf("select is interactive and needs a terminal, use update for unattended runs")
	}

	log := newLogger(opts)
	km, err := newKernelManager(opts, log)
	if err != nil {
		return err
	}

	versions, err := km.AvailableKernels()
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		return fmt.Errorf("no vmlinuz- kernel images found in the boot directory")
	}
	kernelmgr.SortVersions(versions)

	current, haveCurrent, err := km.CurrentSelection()
	if err != nil {
		return err
	}

	prompter := kernelmgr.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
	for {
		version, ok, err := prompter.SelectVersion(versions, current, haveCurrent)
		if err != nil {
			return err
		}
		if ok {
			return km.SetKernel(version)
		}
		retry, err := prompter.ConfirmRetry()
		if err != nil {
			return err
		}
		if !retry {
			fmt.Fprintln(cmd.OutOrStdout(), "Exiting without selecting a kernel.")
			return &SilentExitError{Code: 1}
		}
	}
}
