// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package downloadclient unifies the supported torrent clients behind one
// contract and implements the queue cleaner, content blocker and download
// cleaner decisions on top of it.
package downloadclient

import (
	"context"
	"time"

	"github.com/autobrr/sweeparr/internal/domain"
)

type Activity int

const (
	// ActivityOther covers paused, seeding, checking, queued and error states.
	ActivityOther Activity = iota
	ActivityDownloading
	ActivityFetchingMetadata
)

func (a Activity) String() string {
	switch a {
	case ActivityDownloading:
		return "downloading"
	case ActivityFetchingMetadata:
		return "fetchingMetadata"
	default:
		return "other"
	}
}

type File struct {
	Index  int
	Name   string
	Wanted bool
	// Priority is the backend's own value, zero when the backend does not
	// report one.
	Priority int
}

// Download is the normalized snapshot of one torrent. Backends fill what
// their protocol reports; ETA zero means unknown or infinite.
type Download struct {
	Hash        string
	Name        string
	Category    string
	Private     bool
	Complete    bool
	Size        int64
	Downloaded  int64
	ETA         time.Duration
	Activity    Activity
	Ratio       float64
	SeedingTime time.Duration
	Files       []File
}

// Backend is the wire level contract each torrent client implements.
type Backend interface {
	Type() domain.DownloadClientType
	Login(ctx context.Context) error
	// GetDownload returns nil without error when the hash is unknown.
	GetDownload(ctx context.Context, hash string) (*Download, error)
	// ListDownloads returns every torrent without file details.
	ListDownloads(ctx context.Context) ([]Download, error)
	SetFilesUnwanted(ctx context.Context, download *Download, indexes []int) error
	DeleteDownload(ctx context.Context, hash string) error
}
