// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package kernelmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// Kernel and initrd images in the boot directory.
	kernelPrefix = "vmlinuz-"
	initrdPrefix = "initrd.img-"

	// The two symlinks that select the custom kernel.
	kernelLink = "vmlinuz.custom"
	initrdLink = "initrd.img.custom"

	// Fixed names the boot manager loads from the EFI system partition.
	espKernelName = "vmlinuz-custom.efi"
	espInitrdName = "initrd.img-custom"
)

// ErrMalformedLink indicates that vmlinuz.custom points at something that is
// not a kernel image. This is distinct from the link being absent, which is a
// legitimate first-run state.
var ErrMalformedLink = errors.New("custom kernel link does not point at a vmlinuz- image")

// KernelManager owns the custom-kernel symlinks in the boot directory and
// their copies on the EFI system partition.
type KernelManager struct {
	bootDir string
	espDir  string
	dryRun  bool
	log     zerolog.Logger
}

// NewKernelManager returns a manager for the given boot and ESP directories.
// Both must exist; a missing directory is a configuration error, not something
// to create on the fly.
func NewKernelManager(bootDir, espDir string, log zerolog.Logger, dryRun bool) (*KernelManager, error) {
	for _, dir := range []string{bootDir, espDir} {
		fi, err := appFs.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s (run init-config to regenerate the configuration): %w", dir, err)
		}
		if !fi.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}
	}
	return &KernelManager{bootDir: bootDir, espDir: espDir, log: log, dryRun: dryRun}, nil
}

// AvailableKernels scans the boot directory for vmlinuz-<version> images and
// returns the version suffixes. The result is unordered; an empty boot
// directory yields an empty result, not an error.
func (km *KernelManager) AvailableKernels() ([]string, error) {
	entries, err := appFs.ReadDir(km.bootDir)
	if err != nil {
		return nil, fmt.Errorf("cannot read boot directory %s: %w", km.bootDir, err)
	}

	var versions []string
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, kernelPrefix) || entry.IsDir() {
			continue
		}
		versions = append(versions, strings.TrimPrefix(name, kernelPrefix))
	}
	return versions, nil
}

// CurrentSelection resolves the version the custom kernel link points at.
// The second return is false when no custom kernel is selected yet.
func (km *KernelManager) CurrentSelection() (string, bool, error) {
	target, err := appFs.Readlink(filepath.Join(km.bootDir, kernelLink))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cannot read %s: %w", kernelLink, err)
	}

	name := filepath.Base(target)
	if !strings.HasPrefix(name, kernelPrefix) {
		return "", false, fmt.Errorf("%s points at %q: %w", kernelLink, target, ErrMalformedLink)
	}
	return strings.TrimPrefix(name, kernelPrefix), true, nil
}

// SetKernel points the custom kernel at version: the two boot-directory
// symlinks are recreated first, then the resolved images are copied to the
// ESP under the fixed names the boot manager expects.
//
// The steps run in order and are not rolled back on failure; a mid-sequence
// I/O error aborts with the failing step in the error. Applying the same
// version again is a no-op for the ESP copies.
func (km *KernelManager) SetKernel(version string) error {
	kernelImage := kernelPrefix + version
	initrdImage := initrdPrefix + version

	// Validate the images exist before touching anything, dry-run included.
	for _, name := range []string{kernelImage, initrdImage} {
		if _, err := appFs.Stat(filepath.Join(km.bootDir, name)); err != nil {
			return fmt.Errorf("kernel version %s is not installed: %w", version, err)
		}
	}

	links := []struct{ target, link string }{
		{kernelImage, kernelLink},
		{initrdImage, initrdLink},
	}
	copies := []struct{ src, dst string }{
		{kernelImage, espKernelName},
		{initrdImage, espInitrdName},
	}

	if km.dryRun {
		for _, l := range links {
			km.log.Info().Bool("dry-run", true).Msgf("would point %s at %s", l.link, l.target)
		}
		for _, c := range copies {
			km.log.Info().Bool("dry-run", true).Msgf("would copy %s to %s", c.src, filepath.Join(km.espDir, c.dst))
		}
		return nil
	}

	for _, l := range links {
		if err := replaceSymlink(l.target, filepath.Join(km.bootDir, l.link)); err != nil {
			return fmt.Errorf("updating %s: %w", l.link, err)
		}
		km.log.Info().Str("target", l.target).Msgf("pointed %s", l.link)
	}

	for _, c := range copies {
		dst := filepath.Join(km.espDir, c.dst)
		updated, err := MaybeUpdateFile(dst, filepath.Join(km.bootDir, c.src))
		if err != nil {
			return fmt.Errorf("copying %s to the EFI system partition: %w", c.src, err)
		}
		if updated {
			km.log.Info().Str("image", c.src).Msgf("copied to %s", dst)
		} else {
			km.log.Debug().Str("image", c.src).Msg("ESP copy already up to date")
		}
	}

	return nil
}

// Advance moves the custom kernel to the next version in the current
// selection's family. It returns the version it moved to and true, or false
// when the selection is already the newest in its family (not an error).
//
// Advancing requires a prior selection; without one there is no baseline and
// the operator has to run an interactive select first.
func (km *KernelManager) Advance() (string, bool, error) {
	current, ok, err := km.CurrentSelection()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, errors.New("no custom kernel is selected yet, run select first")
	}

	available, err := km.AvailableKernels()
	if err != nil {
		return "", false, err
	}

	next, ok, err := NextVersion(available, current)
	if err != nil {
		return "", false, err
	}
	if !ok {
		km.log.Info().Str("current", current).Msg("already at the newest kernel in this family")
		return "", false, nil
	}

	km.log.Info().Str("from", current).Str("to", next).Msg("advancing custom kernel")
	if err := km.SetKernel(next); err != nil {
		return "", false, err
	}
	return next, true, nil
}
