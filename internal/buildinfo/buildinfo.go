// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo exposes values stamped in at link time.
package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""

	UserAgent string
)

func init() {
	UserAgent = fmt.Sprintf("sweeparr/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// String returns a human readable summary for the version command.
func String() string {
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild date: %s\n", Version, Commit, Date)
}

func JSON() ([]byte, error) {
	return json.Marshal(struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
		Date    string `json:"date"`
	}{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	})
}
