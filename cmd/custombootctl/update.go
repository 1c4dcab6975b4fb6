// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Advance the custom kernel to the next installed version",
		Long: `update moves the custom kernel to the next version after the current
selection, staying within the current selection's version family (the family
is the current version with every digit run wildcarded). When the selection is
already the newest in its family, update does nothing and exits successfully.

A prior interactive select is required; update has no baseline without one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts)
		},
	}
}

func runUpdate(cmd *cobra.Command, opts *rootOptions) error {
	if err := requireRoot(opts); err != nil {
		return err
	}

	log := newLogger(opts)
	km, err := newKernelManager(opts, log)
	if err != nil {
		return err
	}

	next, advanced, err := km.Advance()
	if err != nil {
		return err
	}
	if !advanced {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do.")
		return nil
	}
	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Would switch the custom kernel to %s.\n", next)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Custom kernel is now %s.\n", next)
	}
	return nil
}
