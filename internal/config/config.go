// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

// Package config persists the boot paths discovered by kernelstub.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"customboot/internal/kernelstub"
)

// DefaultPath is where init-config writes the configuration.
const DefaultPath = "/etc/custom-kernel.toml"

// Config holds the two directories the engine works on, plus the root
// filesystem id kernelstub reported when the config was generated.
type Config struct {
	BootDir    string `toml:"boot_dir"`
	ESPDir     string `toml:"esp_dir"`
	RootFSUUID string `toml:"root_fs_uuid"`
}

// Load reads and parses the TOML configuration at path. A missing file is a
// configuration error; the remediation is running init-config.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("no configuration at %s, run init-config first", path)
		}
		return cfg, fmt.Errorf("cannot read configuration: %w", err)
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s is incomplete, rerun init-config: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every field is set. Whether the directories actually
// exist is checked by the kernel manager, which owns that failure mode.
func (c Config) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"boot_dir", c.BootDir},
		{"esp_dir", c.ESPDir},
		{"root_fs_uuid", c.RootFSUUID},
	} {
		if f.value == "" {
			return fmt.Errorf("missing %s", f.name)
		}
	}
	return nil
}

// Save writes the configuration as TOML.
func Save(path string, cfg Config) error {
	b, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// FromBootConfig derives the engine configuration from a kernelstub report.
// The ESP target directory follows kernelstub's loader-directory naming, so
// the copies land next to the entries the boot manager already reads.
func FromBootConfig(bc kernelstub.BootConfig) Config {
	return Config{
		BootDir:    bc.KernelDir,
		ESPDir:     filepath.Join(bc.ESPPath, "EFI", "custom-"+bc.RootFSUUID),
		RootFSUUID: bc.RootFSUUID,
	}
}
