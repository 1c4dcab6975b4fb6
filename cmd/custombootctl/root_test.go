// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customboot/internal/config"
	"customboot/internal/kernelstub"
)

func asRoot(t *testing.T) {
	t.Helper()
	old := geteuid
	geteuid = func() int { return 0 }
	t.Cleanup(func() { geteuid = old })
}

func asUser(t *testing.T) {
	t.Helper()
	old := geteuid
	geteuid = func() int { return 1000 }
	t.Cleanup(func() { geteuid = old })
}

func withTerminal(t *testing.T, have bool) {
	t.Helper()
	old := isTerminal
	isTerminal = func() bool { return have }
	t.Cleanup(func() { isTerminal = old })
}

// testWorld lays out a boot directory, an ESP target directory and a config
// file on the real filesystem.
func testWorld(t *testing.T, current string, versions ...string) (cfgPath, bootDir, espDir string) {
	t.Helper()
	bootDir = t.TempDir()
	espDir = t.TempDir()
	for _, v := range versions {
		require.NoError(t, os.WriteFile(filepath.Join(bootDir, "vmlinuz-"+v), []byte("kernel "+v), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(bootDir, "initrd.img-"+v), []byte("initrd "+v), 0644))
	}
	if current != "" {
		require.NoError(t, os.Symlink("vmlinuz-"+current, filepath.Join(bootDir, "vmlinuz.custom")))
		require.NoError(t, os.Symlink("initrd.img-"+current, filepath.Join(bootDir, "initrd.img.custom")))
	}
	cfgPath = filepath.Join(t.TempDir(), "custom-kernel.toml")
	require.NoError(t, config.Save(cfgPath, config.Config{
		BootDir:    bootDir,
		ESPDir:     espDir,
		RootFSUUID: "2f24a3b1",
	}))
	return cfgPath, bootDir, espDir
}

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func readLink(t *testing.T, path string) string {
	t.Helper()
	target, err := os.Readlink(path)
	require.NoError(t, err)
	return target
}

func TestUpdateRequiresRoot(t *testing.T) {
	asUser(t)
	cfgPath, _, _ := testWorld(t, "6.9.1-generic", "6.9.1-generic")

	_, err := runCmd(t, "", "update", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root")
}

func TestUpdateWithoutConfig(t *testing.T) {
	asRoot(t)
	_, err := runCmd(t, "", "update", "--config", filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init-config")
}

func TestUpdateAdvances(t *testing.T) {
	asRoot(t)
	cfgPath, bootDir, espDir := testWorld(t, "6.9.1-generic", "6.9.1-generic", "6.9.2-generic")

	out, err := runCmd(t, "", "update", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Custom kernel is now 6.9.2-generic.")

	assert.Equal(t, "vmlinuz-6.9.2-generic", readLink(t, filepath.Join(bootDir, "vmlinuz.custom")))
	assert.Equal(t, "initrd.img-6.9.2-generic", readLink(t, filepath.Join(bootDir, "initrd.img.custom")))

	kernel, err := os.ReadFile(filepath.Join(espDir, "vmlinuz-custom.efi"))
	require.NoError(t, err)
	assert.Equal(t, "kernel 6.9.2-generic", string(kernel))
	initrd, err := os.ReadFile(filepath.Join(espDir, "initrd.img-custom"))
	require.NoError(t, err)
	assert.Equal(t, "initrd 6.9.2-generic", string(initrd))
}

func TestUpdateNothingToDo(t *testing.T) {
	asRoot(t)
	cfgPath, bootDir, espDir := testWorld(t, "6.9.2-generic", "6.9.1-generic", "6.9.2-generic")

	out, err := runCmd(t, "", "update", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to do.")

	assert.Equal(t, "vmlinuz-6.9.2-generic", readLink(t, filepath.Join(bootDir, "vmlinuz.custom")))
	_, err = os.Stat(filepath.Join(espDir, "vmlinuz-custom.efi"))
	assert.True(t, os.IsNotExist(err), "no-op update must not write ESP copies")
}

func TestUpdateWithoutSelection(t *testing.T) {
	asRoot(t)
	cfgPath, _, _ := testWorld(t, "", "6.9.1-generic")

	_, err := runCmd(t, "", "update", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select")
}

func TestUpdateDryRun(t *testing.T) {
	asUser(t) // dry runs do not need root
	cfgPath, bootDir, espDir := testWorld(t, "6.9.1-generic", "6.9.1-generic", "6.9.2-generic")

	out, err := runCmd(t, "", "update", "--dry-run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Would switch the custom kernel to 6.9.2-generic.")

	assert.Equal(t, "vmlinuz-6.9.1-generic", readLink(t, filepath.Join(bootDir, "vmlinuz.custom")))
	_, err = os.Stat(filepath.Join(espDir, "vmlinuz-custom.efi"))
	assert.True(t, os.IsNotExist(err), "dry run must not write ESP copies")
}

func TestSelectNeedsTerminal(t *testing.T) {
	asRoot(t)
	withTerminal(t, false)
	cfgPath, _, _ := testWorld(t, "", "6.9.1-generic")

	_, err := runCmd(t, "", "select", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")
}

func TestSelectAppliesChoice(t *testing.T) {
	asRoot(t)
	withTerminal(t, true)
	cfgPath, bootDir, _ := testWorld(t, "", "6.9.1-generic", "6.9.2-generic", "6.9.10-generic")

	out, err := runCmd(t, "2\n", "select", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1) 6.9.1-generic")
	assert.Contains(t, out, "3) 6.9.10-generic")

	assert.Equal(t, "vmlinuz-6.9.2-generic", readLink(t, filepath.Join(bootDir, "vmlinuz.custom")))
}

func TestSelectIsTheDefaultCommand(t *testing.T) {
	asRoot(t)
	withTerminal(t, true)
	cfgPath, bootDir, _ := testWorld(t, "", "6.9.1-generic")

	_, err := runCmd(t, "1\n", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "vmlinuz-6.9.1-generic", readLink(t, filepath.Join(bootDir, "vmlinuz.custom")))
}

func TestSelectRetryThenAbort(t *testing.T) {
	asRoot(t)
	withTerminal(t, true)
	cfgPath, bootDir, _ := testWorld(t, "", "6.9.1-generic")

	// Empty choice, retry, empty choice again, decline.
	out, err := runCmd(t, "\ny\n\nn\n", "select", "--config", cfgPath)
	require.Error(t, err)
	var silent *SilentExitError
	require.True(t, errors.As(err, &silent))
	assert.Equal(t, 1, silent.Code)
	assert.Contains(t, out, "Exiting without selecting a kernel.")

	_, err = os.Readlink(filepath.Join(bootDir, "vmlinuz.custom"))
	assert.True(t, os.IsNotExist(err), "aborted select must not create links")
}

func TestSelectNoKernels(t *testing.T) {
	asRoot(t)
	withTerminal(t, true)
	cfgPath, _, _ := testWorld(t, "")

	_, err := runCmd(t, "", "select", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vmlinuz-")
}

type fakeStub struct {
	cfg kernelstub.BootConfig
	err error
}

func (f fakeStub) PrintConfig() (kernelstub.BootConfig, error) { return f.cfg, f.err }

func withStub(t *testing.T, stub kernelstub.Client) {
	t.Helper()
	old := stubClient
	stubClient = stub
	t.Cleanup(func() { stubClient = old })
}

func TestInitConfig(t *testing.T) {
	asRoot(t)
	esp := t.TempDir()
	withStub(t, fakeStub{cfg: kernelstub.BootConfig{
		KernelDir:  "/boot",
		ESPPath:    esp,
		RootFSUUID: "2f24a3b1",
	}})
	cfgPath := filepath.Join(t.TempDir(), "custom-kernel.toml")

	out, err := runCmd(t, "", "init-config", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+cfgPath)

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/boot", cfg.BootDir)
	assert.Equal(t, filepath.Join(esp, "EFI", "custom-2f24a3b1"), cfg.ESPDir)

	fi, err := os.Stat(cfg.ESPDir)
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}

func TestInitConfigDryRun(t *testing.T) {
	asUser(t)
	withStub(t, fakeStub{cfg: kernelstub.BootConfig{
		KernelDir:  "/boot",
		ESPPath:    "/boot/efi",
		RootFSUUID: "2f24a3b1",
	}})
	cfgPath := filepath.Join(t.TempDir(), "custom-kernel.toml")

	out, err := runCmd(t, "", "init-config", "--dry-run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Would create")
	assert.Contains(t, out, "boot_dir")

	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "dry run must not write the config file")
}

func TestInitConfigStubFailure(t *testing.T) {
	asRoot(t)
	withStub(t, fakeStub{err: errors.New("kernelstub not found")})

	_, err := runCmd(t, "", "init-config", "--config", filepath.Join(t.TempDir(), "c.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernelstub")
}
