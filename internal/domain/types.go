// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"fmt"
	"strings"
)

// InstanceType identifies the flavour of an arr backend.
type InstanceType string

const (
	InstanceTypeSonarr InstanceType = "sonarr"
	InstanceTypeRadarr InstanceType = "radarr"
	InstanceTypeLidarr InstanceType = "lidarr"
)

// InstanceTypes lists every supported arr backend in processing order.
var InstanceTypes = []InstanceType{InstanceTypeSonarr, InstanceTypeRadarr, InstanceTypeLidarr}

// ParseInstanceType validates and normalizes an arr type string.
func ParseInstanceType(value string) (InstanceType, error) {
	switch InstanceType(strings.ToLower(strings.TrimSpace(value))) {
	case InstanceTypeSonarr:
		return InstanceTypeSonarr, nil
	case InstanceTypeRadarr:
		return InstanceTypeRadarr, nil
	case InstanceTypeLidarr:
		return InstanceTypeLidarr, nil
	default:
		return "", fmt.Errorf("unsupported arr instance type: %s", value)
	}
}

type DownloadClientType string

const (
	DownloadClientQbittorrent  DownloadClientType = "qbittorrent"
	DownloadClientDeluge       DownloadClientType = "deluge"
	DownloadClientTransmission DownloadClientType = "transmission"
)

func ParseDownloadClientType(value string) (DownloadClientType, error) {
	switch DownloadClientType(strings.ToLower(strings.TrimSpace(value))) {
	case DownloadClientQbittorrent:
		return DownloadClientQbittorrent, nil
	case DownloadClientDeluge:
		return DownloadClientDeluge, nil
	case DownloadClientTransmission:
		return DownloadClientTransmission, nil
	default:
		return "", fmt.Errorf("unsupported download client type: %q", value)
	}
}

// ItemContext identifies the queue item being worked on. It is passed
// explicitly from the queue handler down to the download client adapter,
// the strike tracker and the notifier.
type ItemContext struct {
	InstanceType InstanceType
	InstanceURL  string
	Hash         string
	Title        string
}
