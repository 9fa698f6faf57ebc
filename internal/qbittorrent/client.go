// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbittorrent

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

// infiniteETA is what qBittorrent reports when no estimate is available.
const infiniteETA = 8640000

var minFilePriorityVersion = semver.MustParse("2.2.0")

var _ downloadclient.Backend = (*Client)(nil)

type Client struct {
	*qbt.Client
	host                 string
	webAPIVersion        string
	supportsFilePriority bool
	mu                   sync.RWMutex
}

// filteredWriter drops the "Unsolicited response received on idle HTTP
// channel" lines net/http prints to the standard logger when qBittorrent
// writes past the end of a response.
type filteredWriter struct {
	writer io.Writer
}

func (fw *filteredWriter) Write(p []byte) (n int, err error) {
	if strings.Contains(string(p), "Unsolicited response received on idle HTTP channel") {
		return len(p), nil
	}
	return fw.writer.Write(p)
}

func init() {
	stdlog.SetOutput(&filteredWriter{writer: os.Stderr})
}

func NewClient(cfg domain.DownloadClientConfig, timeout time.Duration) *Client {
	qcfg := qbt.Config{
		Host:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  30,
	}
	if timeout > 0 {
		qcfg.Timeout = int(timeout.Seconds())
	}

	if cfg.BasicUsername != "" {
		qcfg.BasicUser = cfg.BasicUsername
		qcfg.BasicPass = cfg.BasicPassword
	}

	return &Client{
		Client: qbt.NewClient(qcfg),
		host:   cfg.URL,
	}
}

func (c *Client) Type() domain.DownloadClientType {
	return domain.DownloadClientQbittorrent
}

// Login authenticates and records the WebAPI version to gate file priority
// support.
func (c *Client) Login(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := c.LoginCtx(ctx); err != nil {
		return fmt.Errorf("failed to connect to qBittorrent: %w", err)
	}

	webAPIVersion, err := c.GetWebAPIVersionCtx(ctx)
	if err != nil {
		webAPIVersion = ""
	}

	supportsFilePriority := true
	if webAPIVersion != "" {
		if v, err := semver.NewVersion(webAPIVersion); err == nil {
			supportsFilePriority = !v.LessThan(minFilePriorityVersion)
		}
	}

	c.mu.Lock()
	c.webAPIVersion = webAPIVersion
	c.supportsFilePriority = supportsFilePriority
	c.mu.Unlock()

	log.Debug().
		Str("host", c.host).
		Str("webAPIVersion", webAPIVersion).
		Bool("supportsFilePriority", supportsFilePriority).
		Msg("qBittorrent login successful")

	return nil
}

func (c *Client) SupportsFilePriority() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supportsFilePriority
}

func (c *Client) GetWebAPIVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.webAPIVersion
}

func (c *Client) GetDownload(ctx context.Context, hash string) (*downloadclient.Download, error) {
	hash = hashutil.Normalize(hash)

	torrents, err := c.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Hashes: []string{hash}})
	if err != nil {
		return nil, fmt.Errorf("could not get torrent %s: %w", hash, err)
	}
	if len(torrents) == 0 {
		return nil, nil
	}

	download := convertTorrent(torrents[0])

	props, err := c.GetTorrentPropertiesCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("could not get properties of %s: %w", hash, err)
	}
	download.Private = download.Private || props.IsPrivate

	files, err := c.GetFilesInformationCtx(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("could not get files of %s: %w", hash, err)
	}
	if files != nil {
		download.Files = make([]downloadclient.File, 0, len(*files))
		for _, f := range *files {
			download.Files = append(download.Files, downloadclient.File{
				Index:  f.Index,
				Name:   f.Name,
				Wanted: f.Priority != 0,
			})
		}
	}

	return &download, nil
}

func (c *Client) ListDownloads(ctx context.Context) ([]downloadclient.Download, error) {
	torrents, err := c.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Filter: qbt.TorrentFilterCompleted})
	if err != nil {
		return nil, fmt.Errorf("could not list torrents: %w", err)
	}

	out := make([]downloadclient.Download, 0, len(torrents))
	for _, t := range torrents {
		out = append(out, convertTorrent(t))
	}
	return out, nil
}

func (c *Client) SetFilesUnwanted(ctx context.Context, download *downloadclient.Download, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}
	if !c.SupportsFilePriority() {
		return fmt.Errorf("qBittorrent WebAPI %s does not support file priorities", c.GetWebAPIVersion())
	}

	ids := make([]string, len(indexes))
	for i, idx := range indexes {
		ids[i] = strconv.Itoa(idx)
	}

	if err := c.SetFilePriorityCtx(ctx, download.Hash, strings.Join(ids, "|"), 0); err != nil {
		switch {
		case errors.Is(err, qbt.ErrInvalidPriority):
			return fmt.Errorf("invalid file priority or file indices: %w", err)
		case errors.Is(err, qbt.ErrTorrentMetdataNotDownloadedYet):
			return fmt.Errorf("torrent metadata is not yet available: %w", err)
		default:
			return fmt.Errorf("could not set file priority: %w", err)
		}
	}
	return nil
}

func (c *Client) DeleteDownload(ctx context.Context, hash string) error {
	return c.DeleteTorrentsCtx(ctx, []string{hashutil.Normalize(hash)}, true)
}

func convertTorrent(t qbt.Torrent) downloadclient.Download {
	eta := time.Duration(0)
	if t.ETA > 0 && t.ETA < infiniteETA {
		eta = time.Duration(t.ETA) * time.Second
	}

	return downloadclient.Download{
		Hash:        hashutil.Normalize(t.Hash),
		Name:        t.Name,
		Category:    t.Category,
		Private:     t.Private,
		Complete:    t.Progress >= 1,
		Size:        t.Size,
		Downloaded:  t.Downloaded,
		ETA:         eta,
		Activity:    activity(t.State),
		Ratio:       t.Ratio,
		SeedingTime: time.Duration(t.SeedingTime) * time.Second,
	}
}

func activity(state qbt.TorrentState) downloadclient.Activity {
	switch state {
	case qbt.TorrentStateDownloading, qbt.TorrentStateStalledDl, qbt.TorrentStateForcedDl:
		return downloadclient.ActivityDownloading
	case qbt.TorrentStateMetaDl:
		return downloadclient.ActivityFetchingMetadata
	default:
		return downloadclient.ActivityOther
	}
}
