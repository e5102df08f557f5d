// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

// Package color converts between @-style color codes and ANSI escape
// sequences. Every function is pure; the rest of the proxy treats this
// package as an opaque collaborator.
package color

import (
	"regexp"
	"strconv"
	"strings"
)

// Base color letters in SGR order (30..37). Lowercase is the dim
// variant, uppercase is bold.
const baseLetters = "krgybmcw"

var (
	ansiPattern      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
	colorCodePattern = regexp.MustCompile(`@[kbgcrmywKBGCRMYWD]|@[xz][0-9]{1,3}|@@`)
	// validPattern matches a string consisting only of color codes, used
	// to validate color-typed settings like "@x86" or "@R".
	validPattern = regexp.MustCompile(`^(?:@[kbgcrmywKBGCRMYWD]|@[xz][0-9]{1,3})+$`)
)

// ansiFor returns the SGR sequence for a single @-code (without the @).
func ansiFor(code string) (string, bool) {
	if code == "D" {
		return "\x1b[0m", true
	}
	if len(code) == 1 {
		idx := strings.IndexByte(baseLetters, code[0]|0x20)
		if idx < 0 {
			return "", false
		}
		bold := code[0] >= 'A' && code[0] <= 'Z'
		if bold {
			return "\x1b[1;" + strconv.Itoa(30+idx) + "m", true
		}
		return "\x1b[0;" + strconv.Itoa(30+idx) + "m", true
	}
	if code[0] == 'x' || code[0] == 'z' {
		n, err := strconv.Atoi(code[1:])
		if err != nil || n > 255 {
			return "", false
		}
		if code[0] == 'x' {
			return "\x1b[38;5;" + strconv.Itoa(n) + "m", true
		}
		return "\x1b[48;5;" + strconv.Itoa(n) + "m", true
	}
	return "", false
}

// ToANSI converts @-style color codes in s to ANSI escape sequences.
// "@@" escapes a literal @.
func ToANSI(s string) string {
	return colorCodePattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "@@" {
			return "@"
		}
		if seq, ok := ansiFor(m[1:]); ok {
			return seq
		}
		return m
	})
}

// ToColorCode converts ANSI escape sequences in s back to @-style codes.
// Sequences with no @-code equivalent are dropped.
func ToColorCode(s string) string {
	return ansiPattern.ReplaceAllStringFunc(s, func(m string) string {
		return codeForANSI(m)
	})
}

func codeForANSI(seq string) string {
	body := strings.TrimSuffix(strings.TrimPrefix(seq, "\x1b["), "m")
	if body == "" || body == "0" {
		return "@w"
	}
	parts := strings.Split(body, ";")
	// 256-color foreground/background: 38;5;N and 48;5;N.
	if len(parts) == 3 && parts[1] == "5" {
		switch parts[0] {
		case "38":
			return "@x" + parts[2]
		case "48":
			return "@z" + parts[2]
		}
	}
	bold := false
	letter := byte(0)
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		switch {
		case n == 1:
			bold = true
		case n >= 30 && n <= 37:
			letter = baseLetters[n-30]
		}
	}
	if letter == 0 {
		return ""
	}
	if bold {
		letter &^= 0x20
	}
	return "@" + string(letter)
}

// StripANSI removes all ANSI escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// StripColorCodes removes all @-style color codes from s, unescaping "@@".
func StripColorCodes(s string) string {
	return colorCodePattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "@@" {
			return "@"
		}
		return ""
	})
}

// Valid reports whether s is a well-formed color-code string such as
// "@R" or "@x86@z233". The empty string is valid (no color).
func Valid(s string) bool {
	if s == "" {
		return true
	}
	if !validPattern.MatchString(s) {
		return false
	}
	// Reject out-of-range 256-color indexes that the shape check allows.
	for _, m := range colorCodePattern.FindAllString(s, -1) {
		if len(m) > 2 && (m[1] == 'x' || m[1] == 'z') {
			if n, err := strconv.Atoi(m[2:]); err != nil || n > 255 {
				return false
			}
		}
	}
	return true
}
