// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

// Package kernelmgr selects and advances the custom boot kernel.
package kernelmgr

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// FS abstracts away the filesystem.
//
// So we really wanted to use afero because it does all the magic for us, but it doubles
// our binary size, so that seems a tad much. Tests wrap an afero MemMapFs instead.
type FS interface {
	// Create behaves like os.Create()
	Create(path string) (io.WriteCloser, error)
	// MkdirAll behaves like os.MkdirAll()
	MkdirAll(path string, perm os.FileMode) error
	// Open behaves like os.Open()
	Open(path string) (io.ReadSeekCloser, error)
	// ReadDir behaves like os.ReadDir()
	ReadDir(path string) ([]os.DirEntry, error)
	// Remove behaves like os.Remove()
	Remove(path string) error
	// Stat behaves like os.Stat()
	Stat(path string) (os.FileInfo, error)
	// Symlink behaves like os.Symlink()
	Symlink(target, link string) error
	// Readlink behaves like os.Readlink()
	Readlink(link string) (string, error)
}

// realFS implements FS using the os package
type realFS struct{}

func (realFS) Create(path string) (io.WriteCloser, error)   { return os.Create(path) }
func (realFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (realFS) Open(path string) (io.ReadSeekCloser, error)  { return os.Open(path) }
func (realFS) ReadDir(path string) ([]os.DirEntry, error)   { return os.ReadDir(path) }
func (realFS) Remove(path string) error                     { return os.Remove(path) }
func (realFS) Stat(path string) (os.FileInfo, error)        { return os.Stat(path) }
func (realFS) Symlink(target, link string) error            { return os.Symlink(target, link) }
func (realFS) Readlink(link string) (string, error)         { return os.Readlink(link) }

// appFs is our default FS
var appFs FS = realFS{}

// MaybeUpdateFile copies src to dest if they are different
// It returns true if the destination file was successfully updated. If the return value
// is false, the state of the destination is unspecified. It might not exist, exist
// with partial data or exist with old data, amongst others.
func MaybeUpdateFile(dst string, src string) (bool, error) {
	srcFile, err := appFs.Open(src)
	if err != nil {
		return false, fmt.Errorf("could not open source file: %w", err)
	}
	defer srcFile.Close()

	if needUpdate, err := needUpdateFile(dst, src, srcFile); !needUpdate {
		return false, err
	}

	dstFileWriter, err := appFs.Create(dst)
	if err != nil {
		return false, fmt.Errorf("could not open %s for writing: %w", dst, err)
	}
	defer dstFileWriter.Close()

	if _, err := io.Copy(dstFileWriter, srcFile); err != nil {
		return false, fmt.Errorf("could not copy %s to %s: %w", src, dst, err)
	}
	return true, nil
}

func needUpdateFile(dst string, src string, srcFile io.ReadSeeker) (bool, error) {
	// To keep things simple, but not have the files in memory, just hash them
	dstHash := sha256.New()
	srcHash := sha256.New()

	dstFile, err := appFs.Open(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("could not open destination file: %w", err)
	}

	defer dstFile.Close()

	if _, err := io.Copy(dstHash, dstFile); err != nil {
		return false, fmt.Errorf("could not hash destination file %s: %w", dst, err)
	}
	if _, err := io.Copy(srcHash, srcFile); err != nil {
		return false, fmt.Errorf("could not hash source file %s: %w", src, err)
	}
	if bytes.Equal(dstHash.Sum(nil), srcHash.Sum(nil)) {
		return false, nil
	}

	if _, err := srcFile.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("could not seek in source file %s: %w", src, err)
	}

	return true, nil
}

// replaceSymlink points link at target, replacing any existing link.
//
// A dangling or existing link is removed first; os.Symlink refuses to
// overwrite. Removal of a missing link is not an error.
func replaceSymlink(target, link string) error {
	if err := appFs.Remove(link); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove %s: %w", link, err)
	}
	if err := appFs.Symlink(target, link); err != nil {
		return fmt.Errorf("could not link %s to %s: %w", link, target, err)
	}
	return nil
}
