// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactedStr replaces secrets in logged configuration.
const RedactedStr = "<redacted>"

// RedactString replaces a non-empty secret with RedactedStr.
func RedactString(s string) string {
	if len(s) == 0 {
		return ""
	}
	return RedactedStr
}

// IsRedactedValue reports whether the value is a placeholder produced by RedactString.
func IsRedactedValue(value string) bool {
	return strings.TrimSpace(value) == RedactedStr
}

// Redacted returns a copy of the config safe for logging.
func (c Config) Redacted() Config {
	c.DownloadClient.Password = RedactString(c.DownloadClient.Password)
	c.DownloadClient.BasicPassword = RedactString(c.DownloadClient.BasicPassword)
	c.MetricsBasicAuthUsers = RedactString(c.MetricsBasicAuthUsers)
	c.Sonarr.Instances = redactInstances(c.Sonarr.Instances)
	c.Radarr.Instances = redactInstances(c.Radarr.Instances)
	c.Lidarr.Instances = redactInstances(c.Lidarr.Instances)
	return c
}

func redactInstances(instances []ArrInstance) []ArrInstance {
	if instances == nil {
		return nil
	}
	out := make([]ArrInstance, len(instances))
	for i, instance := range instances {
		instance.APIKey = RedactString(instance.APIKey)
		out[i] = instance
	}
	return out
}
