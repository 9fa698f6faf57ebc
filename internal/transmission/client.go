// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package transmission talks to the Transmission rpc endpoint.
package transmission

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/pkg/hashutil"
	"github.com/autobrr/sweeparr/pkg/httphelpers"
)

// CacheTTL bounds how long a torrent-get result is reused within a pass.
const CacheTTL = 30 * time.Second

const (
	statusDownloading = 4
	rpcPath           = "transmission/rpc"
)

var torrentFields = []string{
	"hashString", "name", "status", "eta", "downloadedEver", "totalSize",
	"isPrivate", "labels", "downloadDir", "uploadRatio", "secondsSeeding",
	"percentDone", "metadataPercentComplete", "files", "fileStats",
}

var listFields = []string{
	"hashString", "name", "status", "labels", "downloadDir", "uploadRatio",
	"secondsSeeding", "percentDone", "isPrivate", "totalSize", "downloadedEver",
}

var _ downloadclient.Backend = (*Client)(nil)

type Client struct {
	rpc    *rpc
	cache  *ttlcache.Cache[string, *torrent]
	logger zerolog.Logger
}

// NewClient accepts either the server root or the full rpc url.
func NewClient(cfg domain.DownloadClientConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid transmission url")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, "/rpc") {
		u.Path = httphelpers.JoinBasePath(u.Path, rpcPath)
	}
	endpoint := u.String()

	return &Client{
		rpc: &rpc{
			endpoint: endpoint,
			client:   httpClient,
			username: cfg.Username,
			password: cfg.Password,
		},
		cache:  ttlcache.New(ttlcache.Options[string, *torrent]{}.SetDefaultTTL(CacheTTL)),
		logger: log.With().Str("component", "transmission").Logger(),
	}, nil
}

func (c *Client) Type() domain.DownloadClientType {
	return domain.DownloadClientTransmission
}

// Login fetches a session id so later calls skip the 409 round trip.
func (c *Client) Login(ctx context.Context) error {
	return c.rpc.call(ctx, "session-get", map[string]any{"fields": []string{"version"}}, nil)
}

type torrentFile struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

type torrentFileStat struct {
	Wanted   bool `json:"wanted"`
	Priority int  `json:"priority"`
}

type torrent struct {
	HashString              string            `json:"hashString"`
	Name                    string            `json:"name"`
	Status                  int               `json:"status"`
	ETA                     int64             `json:"eta"`
	DownloadedEver          int64             `json:"downloadedEver"`
	TotalSize               int64             `json:"totalSize"`
	IsPrivate               bool              `json:"isPrivate"`
	Labels                  []string          `json:"labels"`
	DownloadDir             string            `json:"downloadDir"`
	UploadRatio             float64           `json:"uploadRatio"`
	SecondsSeeding          int64             `json:"secondsSeeding"`
	PercentDone             float64           `json:"percentDone"`
	MetadataPercentComplete *float64          `json:"metadataPercentComplete"`
	Files                   []torrentFile     `json:"files"`
	FileStats               []torrentFileStat `json:"fileStats"`
}

// category prefers the first label and falls back to the last element of
// the download directory.
func (t *torrent) category() string {
	for _, label := range t.Labels {
		if label = strings.TrimSpace(label); label != "" {
			return label
		}
	}
	if t.DownloadDir == "" {
		return ""
	}
	return path.Base(strings.TrimRight(strings.ReplaceAll(t.DownloadDir, `\`, "/"), "/"))
}

func (t *torrent) download() downloadclient.Download {
	d := downloadclient.Download{
		Hash:        hashutil.Normalize(t.HashString),
		Name:        t.Name,
		Category:    t.category(),
		Private:     t.IsPrivate,
		Complete:    t.PercentDone >= 1,
		Size:        t.TotalSize,
		Downloaded:  t.DownloadedEver,
		Ratio:       t.UploadRatio,
		SeedingTime: time.Duration(t.SecondsSeeding) * time.Second,
	}
	if t.ETA > 0 {
		d.ETA = time.Duration(t.ETA) * time.Second
	}

	if t.Status == statusDownloading {
		d.Activity = downloadclient.ActivityDownloading
		if t.MetadataPercentComplete != nil && *t.MetadataPercentComplete < 1 {
			d.Activity = downloadclient.ActivityFetchingMetadata
		}
	}

	// files and fileStats are parallel arrays.
	n := min(len(t.Files), len(t.FileStats))
	d.Files = make([]downloadclient.File, 0, n)
	for i := 0; i < n; i++ {
		d.Files = append(d.Files, downloadclient.File{
			Index:  i,
			Name:   t.Files[i].Name,
			Wanted: t.FileStats[i].Wanted,
		})
	}
	return d
}

type torrentGetResult struct {
	Torrents []*torrent `json:"torrents"`
}

func (c *Client) get(ctx context.Context, hash string) (*torrent, error) {
	if t, ok := c.cache.Get(hash); ok {
		return t, nil
	}

	var res torrentGetResult
	args := map[string]any{"fields": torrentFields, "ids": []string{hash}}
	if err := c.rpc.call(ctx, "torrent-get", args, &res); err != nil {
		return nil, err
	}
	if len(res.Torrents) == 0 || res.Torrents[0] == nil {
		return nil, nil
	}

	t := res.Torrents[0]
	c.cache.Set(hash, t, ttlcache.DefaultTTL)
	return t, nil
}

func (c *Client) GetDownload(ctx context.Context, hash string) (*downloadclient.Download, error) {
	t, err := c.get(ctx, hashutil.Normalize(hash))
	if err != nil || t == nil {
		return nil, err
	}

	d := t.download()
	return &d, nil
}

func (c *Client) ListDownloads(ctx context.Context) ([]downloadclient.Download, error) {
	var res torrentGetResult
	if err := c.rpc.call(ctx, "torrent-get", map[string]any{"fields": listFields}, &res); err != nil {
		return nil, err
	}

	out := make([]downloadclient.Download, 0, len(res.Torrents))
	for _, t := range res.Torrents {
		if t == nil {
			continue
		}
		out = append(out, t.download())
	}
	return out, nil
}

func (c *Client) SetFilesUnwanted(ctx context.Context, download *downloadclient.Download, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}

	hash := hashutil.Normalize(download.Hash)
	defer c.cache.Delete(hash)

	return c.rpc.call(ctx, "torrent-set", map[string]any{
		"ids":            []string{hash},
		"files-unwanted": indexes,
	}, nil)
}

func (c *Client) DeleteDownload(ctx context.Context, hash string) error {
	hash = hashutil.Normalize(hash)
	defer c.cache.Delete(hash)

	return c.rpc.call(ctx, "torrent-remove", map[string]any{
		"ids":               []string{hash},
		"delete-local-data": true,
	}, nil)
}
