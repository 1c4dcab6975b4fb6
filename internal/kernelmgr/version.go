// This file is part of customboot
// Copyright 2024 the customboot authors
// SPDX-License-Identifier: GPL-3.0-only

package kernelmgr

import (
	"regexp"
	"sort"
	"strings"
)

// CompareVersions orders two kernel version strings the way version sort does.
//
// Each string is split into alternating runs of digits and non-digits. Runs are
// compared pairwise: digit runs by their integer value, other runs lexically.
// The first differing run decides; a string whose runs are a strict prefix of
// the other's sorts first. Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	aRuns := splitRuns(a)
	bRuns := splitRuns(b)

	for i := 0; i < len(aRuns) && i < len(bRuns); i++ {
		if c := compareRun(aRuns[i], bRuns[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(aRuns) < len(bRuns):
		return -1
	case len(aRuns) > len(bRuns):
		return 1
	}
	return 0
}

// splitRuns splits s into maximal runs of digits and non-digits.
func splitRuns(s string) []string {
	var runs []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isDigit(s[i]) != isDigit(s[i-1]) {
			runs = append(runs, s[start:i])
			start = i
		}
	}
	return runs
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func compareRun(a, b string) int {
	if isDigit(a[0]) && isDigit(b[0]) {
		// Compare numerically without parsing: strip leading zeros, then a
		// longer run is larger and equal lengths compare lexically. Avoids
		// overflow on absurdly long digit runs.
		at := strings.TrimLeft(a, "0")
		bt := strings.TrimLeft(b, "0")
		if len(at) != len(bt) {
			if len(at) < len(bt) {
				return -1
			}
			return 1
		}
		return strings.Compare(at, bt)
	}
	return strings.Compare(a, b)
}

// SortVersions sorts versions ascending in place and returns the slice.
func SortVersions(versions []string) []string {
	sort.Slice(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// FamilyPattern builds the version-family pattern for v: every maximal digit
// run becomes [0-9]+, everything else is matched literally.
//
// Family matching is structural, not release-branch-aware: 7.0.1-generic is in
// the family of 6.9.2-generic because the two differ only in digits.
func FamilyPattern(v string) (*regexp.Regexp, error) {
	var pattern strings.Builder
	pattern.WriteString("^")
	for _, run := range splitRuns(v) {
		if isDigit(run[0]) {
			pattern.WriteString("[0-9]+")
		} else {
			pattern.WriteString(regexp.QuoteMeta(run))
		}
	}
	pattern.WriteString("$")
	return regexp.Compile(pattern.String())
}

// NextVersion returns the next version after current within its family, given
// the available versions. The second return is false when there is nothing
// newer, or when current is absent from its own family in the inventory (the
// inventory changed underneath us); neither case is an error.
func NextVersion(available []string, current string) (string, bool, error) {
	family, err := FamilyPattern(current)
	if err != nil {
		return "", false, err
	}

	var candidates []string
	for _, v := range available {
		if family.MatchString(v) {
			candidates = append(candidates, v)
		}
	}
	SortVersions(candidates)

	for i, v := range candidates {
		if v == current {
			if i+1 < len(candidates) {
				return candidates[i+1], true, nil
			}
			return "", false, nil
		}
	}
	return "", false, nil
}
