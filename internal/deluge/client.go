// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package deluge talks to the Deluge web ui json-rpc endpoint.
package deluge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/internal/downloadclient"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

const (
	stateDownloading = "Downloading"

	priorityNormal = 4

	fileTypeFile = "file"
	fileTypeDir  = "dir"
)

var statusFields = []string{
	"hash", "name", "state", "eta", "total_done", "total_size", "private",
	"label", "ratio", "seeding_time", "is_finished",
}

var _ downloadclient.Backend = (*Client)(nil)

type Client struct {
	rpc      *rpc
	password string
	logger   zerolog.Logger
}

// NewClient builds a client for the web ui at cfg.URL. The session cookie is
// kept in a jar attached to a copy of httpClient.
func NewClient(cfg domain.DownloadClientConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errors.Wrap(err, "could not create cookie jar")
	}
	withJar := *httpClient
	withJar.Jar = jar

	endpoint, err := url.JoinPath(cfg.URL, "json")
	if err != nil {
		return nil, errors.Wrap(err, "invalid deluge url")
	}

	return &Client{
		rpc:      &rpc{endpoint: endpoint, client: &withJar},
		password: cfg.Password,
		logger:   log.With().Str("component", "deluge").Logger(),
	}, nil
}

func (c *Client) Type() domain.DownloadClientType {
	return domain.DownloadClientDeluge
}

// Login authenticates against the web ui and connects it to its first
// daemon when it is not connected yet.
func (c *Client) Login(ctx context.Context) error {
	var ok bool
	if err := c.rpc.call(ctx, "auth.login", &ok, c.password); err != nil {
		return err
	}
	if !ok {
		return errors.New("deluge rejected the password")
	}

	var connected bool
	if err := c.rpc.call(ctx, "web.connected", &connected); err != nil {
		return err
	}
	if connected {
		return nil
	}

	var hosts [][]json.RawMessage
	if err := c.rpc.call(ctx, "web.get_hosts", &hosts); err != nil {
		return err
	}
	if len(hosts) == 0 || len(hosts[0]) == 0 {
		return errors.New("deluge web ui has no daemon configured")
	}

	var hostID string
	if err := json.Unmarshal(hosts[0][0], &hostID); err != nil {
		return errors.Wrap(err, "could not read deluge host id")
	}

	if err := c.rpc.call(ctx, "web.connect", nil, hostID); err != nil {
		return err
	}

	c.logger.Debug().Str("host", hostID).Msg("connected web ui to daemon")
	return nil
}

// call retries once after logging in again when the session has expired.
func (c *Client) call(ctx context.Context, method string, out any, params ...any) error {
	err := c.rpc.call(ctx, method, out, params...)
	if !errors.Is(err, ErrNotAuthenticated) {
		return err
	}

	c.logger.Debug().Str("method", method).Msg("session expired, logging in again")
	if err := c.Login(ctx); err != nil {
		return err
	}
	return c.rpc.call(ctx, method, out, params...)
}

type torrentStatus struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	State       string  `json:"state"`
	ETA         float64 `json:"eta"`
	TotalDone   int64   `json:"total_done"`
	TotalSize   int64   `json:"total_size"`
	Private     bool    `json:"private"`
	Label       string  `json:"label"`
	Ratio       float64 `json:"ratio"`
	SeedingTime int64   `json:"seeding_time"`
	IsFinished  bool    `json:"is_finished"`
}

func (s torrentStatus) download() downloadclient.Download {
	d := downloadclient.Download{
		Hash:        hashutil.Normalize(s.Hash),
		Name:        s.Name,
		Category:    s.Label,
		Private:     s.Private,
		Complete:    s.IsFinished,
		Size:        s.TotalSize,
		Downloaded:  s.TotalDone,
		Ratio:       s.Ratio,
		SeedingTime: time.Duration(s.SeedingTime) * time.Second,
	}
	if s.ETA > 0 {
		d.ETA = time.Duration(s.ETA) * time.Second
	}
	if s.State == stateDownloading {
		d.Activity = downloadclient.ActivityDownloading
	}
	return d
}

// fileNode is one entry of the nested tree returned by web.get_torrent_files.
type fileNode struct {
	Type     string               `json:"type"`
	Index    int                  `json:"index"`
	Path     string               `json:"path"`
	Priority int                  `json:"priority"`
	Contents map[string]*fileNode `json:"contents"`
}

// flatten walks the tree depth first and returns the file nodes sorted by index.
func (n *fileNode) flatten() []downloadclient.File {
	var files []downloadclient.File

	var walk func(name string, node *fileNode)
	walk = func(name string, node *fileNode) {
		if node == nil {
			return
		}
		switch node.Type {
		case fileTypeFile:
			path := node.Path
			if path == "" {
				path = name
			}
			files = append(files, downloadclient.File{
				Index:    node.Index,
				Name:     path,
				Wanted:   node.Priority != 0,
				Priority: node.Priority,
			})
		case fileTypeDir, "":
			for childName, child := range node.Contents {
				walk(childName, child)
			}
		}
	}
	walk("", n)

	sort.Slice(files, func(i, j int) bool { return files[i].Index < files[j].Index })
	return files
}

func (c *Client) GetDownload(ctx context.Context, hash string) (*downloadclient.Download, error) {
	hash = hashutil.Normalize(hash)

	var status *torrentStatus
	if err := c.call(ctx, "web.get_torrent_status", &status, hash, statusFields); err != nil {
		return nil, err
	}
	if status == nil || status.Hash == "" {
		return nil, nil
	}

	var tree *fileNode
	if err := c.call(ctx, "web.get_torrent_files", &tree, hash); err != nil {
		return nil, err
	}

	d := status.download()
	if tree != nil {
		d.Files = tree.flatten()
	}
	return &d, nil
}

func (c *Client) ListDownloads(ctx context.Context) ([]downloadclient.Download, error) {
	var statuses map[string]torrentStatus
	if err := c.call(ctx, "core.get_torrents_status", &statuses, map[string]any{}, statusFields); err != nil {
		return nil, err
	}

	out := make([]downloadclient.Download, 0, len(statuses))
	for hash, s := range statuses {
		if s.Hash == "" {
			s.Hash = hash
		}
		out = append(out, s.download())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hash < out[j].Hash })
	return out, nil
}

// SetFilesUnwanted rewrites the full priority vector, since Deluge has no
// per-file priority call. Files left wanted keep their current priority.
func (c *Client) SetFilesUnwanted(ctx context.Context, download *downloadclient.Download, indexes []int) error {
	if len(indexes) == 0 {
		return nil
	}

	size := 0
	for _, f := range download.Files {
		if f.Index+1 > size {
			size = f.Index + 1
		}
	}

	priorities := make([]int, size)
	for _, f := range download.Files {
		if !f.Wanted {
			continue
		}
		priorities[f.Index] = f.Priority
		if priorities[f.Index] == 0 {
			priorities[f.Index] = priorityNormal
		}
	}
	for _, idx := range indexes {
		if idx >= 0 && idx < size {
			priorities[idx] = 0
		}
	}

	return c.call(ctx, "core.set_torrent_options", nil, []string{download.Hash}, map[string]any{
		"file_priorities": priorities,
	})
}

func (c *Client) DeleteDownload(ctx context.Context, hash string) error {
	return c.call(ctx, "core.remove_torrent", nil, hashutil.Normalize(hash), true)
}
