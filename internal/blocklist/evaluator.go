// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package blocklist

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

type ListType string

const (
	Blacklist ListType = "blacklist"
	Whitelist ListType = "whitelist"
)

func ParseListType(value string) (ListType, error) {
	switch ListType(strings.ToLower(strings.TrimSpace(value))) {
	case Blacklist:
		return Blacklist, nil
	case Whitelist:
		return Whitelist, nil
	default:
		return "", fmt.Errorf("unsupported blocklist type: %q", value)
	}
}

// IsValid reports whether filename is allowed by both the glob patterns and
// the regexes. An empty pattern set or regex set allows everything on its own
// side, so with both populated a whitelisted name has to match at least one
// entry of each.
func IsValid(filename string, listType ListType, patterns []string, regexes []*regexp.Regexp) bool {
	return isValidAgainstPatterns(filename, listType, patterns) &&
		isValidAgainstRegexes(filename, listType, regexes)
}

func isValidAgainstPatterns(filename string, listType ListType, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	matched := false
	for _, pattern := range patterns {
		if matchesPattern(filename, pattern) {
			matched = true
			break
		}
	}

	return verdict(listType, matched)
}

func isValidAgainstRegexes(filename string, listType ListType, regexes []*regexp.Regexp) bool {
	if len(regexes) == 0 {
		return true
	}

	matched := false
	for _, re := range regexes {
		if re.MatchString(filename) {
			matched = true
			break
		}
	}

	return verdict(listType, matched)
}

func verdict(listType ListType, matched bool) bool {
	if listType == Whitelist {
		return matched
	}
	return !matched
}

// matchesPattern supports exact names, "name.*", "*.ext" and "*name*",
// compared case-insensitively.
func matchesPattern(filename, pattern string) bool {
	name := strings.ToLower(filename)
	p := strings.ToLower(strings.TrimSpace(pattern))

	prefixWildcard := strings.HasPrefix(p, "*")
	suffixWildcard := strings.HasSuffix(p, "*")

	switch {
	case prefixWildcard && suffixWildcard && len(p) >= 2:
		return strings.Contains(name, p[1:len(p)-1])
	case prefixWildcard:
		return strings.HasSuffix(name, p[1:])
	case suffixWildcard:
		return strings.HasPrefix(name, p[:len(p)-1])
	default:
		return name == p
	}
}

// FileName strips any directory components a download client reports as
// part of a file path. Both separators are handled since Windows hosts
// report backslashes.
func FileName(p string) string {
	return path.Base(strings.ReplaceAll(p, `\`, "/"))
}
