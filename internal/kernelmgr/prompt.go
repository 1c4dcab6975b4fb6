// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package kernelmgr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

var currentMarker = color.New(color.FgGreen)

// Prompter reads operator choices from a terminal-ish stream. One Prompter
// must be used for a whole session so buffered input is not lost between
// questions.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// SelectVersion renders versions as a 1-based numbered list, marking the
// current selection, and reads one choice. An empty, non-numeric or
// out-of-range response yields no selection (second return false); that is
// the caller's cue to offer a retry, never a silent no-op.
func (p *Prompter) SelectVersion(versions []string, current string, haveCurrent bool) (string, bool, error) {
	fmt.Fprintln(p.out, "Installed kernels:")
	for i, v := range versions {
		if haveCurrent && v == current {
			fmt.Fprintf(p.out, "  %2d) %s %s\n", i+1, v, currentMarker.Sprint("(current)"))
		} else {
			fmt.Fprintf(p.out, "  %2d) %s\n", i+1, v)
		}
	}
	fmt.Fprintf(p.out, "Select a kernel [1-%d]: ", len(versions))

	response, err := p.readLine()
	if err != nil {
		return "", false, err
	}
	choice, err := strconv.Atoi(response)
	if err != nil || choice < 1 || choice > len(versions) {
		return "", false, nil
	}
	return versions[choice-1], true, nil
}

// ConfirmRetry asks whether to show the selection again after an empty or
// invalid choice. Defaults to no, so hitting enter twice ends the session.
func (p *Prompter) ConfirmRetry() (bool, error) {
	fmt.Fprint(p.out, "No kernel chosen. Try again? [y/N]: ")
	response, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(response) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
