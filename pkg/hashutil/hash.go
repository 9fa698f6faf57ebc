// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hashutil normalizes torrent info hashes so that values reported by
// arr queues and the various download clients can be compared directly.
package hashutil

import (
	"slices"
	"strings"
	"sync"
	"unique"
)

// Normalize canonicalizes a hash by trimming whitespace and lowercasing it.
// The result is interned since hashes are used as cache keys on every pass.
func Normalize(hash string) string {
	normalized := strings.ToLower(strings.TrimSpace(hash))
	if normalized == "" {
		return ""
	}
	return unique.Make(normalized).Value()
}

// NormalizeAll normalizes hashes, dropping blanks and duplicates while keeping
// the order of first occurrence.
func NormalizeAll(hashes []string) []string {
	if len(hashes) == 0 {
		return nil
	}

	result := make([]string, 0, len(hashes))
	seen := make(map[string]struct{}, len(hashes))

	for _, hash := range hashes {
		normalized := Normalize(hash)
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}

	return result
}

// Set is a case-insensitive, concurrency-safe set of hashes.
type Set struct {
	mu     sync.RWMutex
	hashes map[string]struct{}
}

// NewSet returns a Set seeded with the given hashes.
func NewSet(hashes ...string) *Set {
	s := &Set{hashes: make(map[string]struct{}, len(hashes))}
	for _, hash := range hashes {
		s.Add(hash)
	}
	return s
}

// Add inserts the hash and reports whether it was not already present.
func (s *Set) Add(hash string) bool {
	normalized := Normalize(hash)
	if normalized == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.hashes[normalized]; exists {
		return false
	}
	s.hashes[normalized] = struct{}{}
	return true
}

// Contains checks if the set contains the given hash.
func (s *Set) Contains(hash string) bool {
	if s == nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.hashes[Normalize(hash)]
	return ok
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// Values returns the hashes in sorted order.
func (s *Set) Values() []string {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	out := make([]string, 0, len(s.hashes))
	for hash := range s.hashes {
		out = append(out, hash)
	}
	s.mu.RUnlock()

	slices.Sort(out)
	return out
}
