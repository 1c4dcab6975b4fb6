// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

// Package kernelstub talks to the kernelstub boot-loader configuration tool.
package kernelstub

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// BootConfig is the slice of kernelstub's configuration this tool needs.
type BootConfig struct {
	// KernelDir is the directory holding the installed kernel images.
	KernelDir string
	// ESPPath is the mount point of the EFI system partition.
	ESPPath string
	// RootFSUUID identifies the root filesystem.
	RootFSUUID string
}

// Client abstracts away the host-specific bits of kernelstub.
type Client interface {
	PrintConfig() (BootConfig, error)
}

// ExecClient runs the real kernelstub binary.
type ExecClient struct{}

// PrintConfig runs kernelstub --print-config and parses its report.
// kernelstub logs its report to stderr, so both streams are captured.
func (ExecClient) PrintConfig() (BootConfig, error) {
	out, err := exec.Command("kernelstub", "--print-config").CombinedOutput()
	if err != nil {
		return BootConfig{}, fmt.Errorf("kernelstub --print-config failed: %w", err)
	}
	return ParsePrintConfig(string(out))
}

// ParsePrintConfig extracts the three fields this tool needs from kernelstub's
// --print-config report. Report lines look like
//
//	Kernel Image Path:.../boot/vmlinuz-6.9.3-76060903-generic
//
// with dot padding between label and value. Every field is validated at this
// boundary; a report missing one is rejected with the field named.
func ParsePrintConfig(output string) (BootConfig, error) {
	fields := map[string]string{}
	for _, line := range strings.Split(output, "\n") {
		label, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(strings.TrimLeft(value, ". "))
		if label == "" || value == "" {
			continue
		}
		fields[label] = value
	}

	var cfg BootConfig
	for _, f := range []struct {
		label string
		dst   *string
	}{
		{"Kernel Image Path", &cfg.KernelDir},
		{"ESP Path", &cfg.ESPPath},
		{"Root FS UUID", &cfg.RootFSUUID},
	} {
		value, ok := fields[f.label]
		if !ok {
			return BootConfig{}, fmt.Errorf("kernelstub output is missing %q", f.label)
		}
		*f.dst = value
	}

	// kernelstub reports the full image path; the engine wants its directory.
	cfg.KernelDir = filepath.Dir(cfg.KernelDir)

	return cfg, nil
}
