// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package arr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/autobrr/sweeparr/internal/buildinfo"
	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/pkg/httphelpers"
	"github.com/autobrr/sweeparr/pkg/redact"
)

// ErrUnexpectedStatus wraps every non-2xx response from an arr API.
var ErrUnexpectedStatus = errors.New("unexpected status")

const apiKeyHeader = "X-Api-Key"

// transport issues JSON requests against a versioned arr API.
type transport struct {
	client     *http.Client
	apiVersion string
}

func newTransport(client *http.Client, apiVersion string) *transport {
	if client == nil {
		client = http.DefaultClient
	}
	return &transport{client: client, apiVersion: apiVersion}
}

func (t *transport) endpoint(instance domain.ArrInstance, query url.Values, elem ...string) (string, error) {
	base, err := url.Parse(instance.URL)
	if err != nil {
		return "", fmt.Errorf("invalid instance url: %w", err)
	}

	u := base.JoinPath(append([]string{"api", t.apiVersion}, elem...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func (t *transport) do(ctx context.Context, instance domain.ArrInstance, method, endpoint string, body, result any) error {
	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, payload)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	}
	if err != nil {
		return fmt.Errorf("could not build request: %w", err)
	}

	req.Header.Set(apiKeyHeader, instance.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return redact.URLError(err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w %d from %s %s: %s", ErrUnexpectedStatus, resp.StatusCode, method, redact.URL(endpoint), httphelpers.ErrorBody(resp))
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("could not decode response from %s: %w", redact.URL(endpoint), err)
	}
	return nil
}

// wireQueue is the envelope shared by every flavour's queue endpoint.
type wireQueue[T any] struct {
	Page         int `json:"page"`
	PageSize     int `json:"pageSize"`
	TotalRecords int `json:"totalRecords"`
	Records      []T `json:"records"`
}

// wireRecordBase holds the fields common to every flavour's queue record.
type wireRecordBase struct {
	ID                    int64           `json:"id"`
	DownloadID            string          `json:"downloadId"`
	Title                 string          `json:"title"`
	Protocol              string          `json:"protocol"`
	Status                string          `json:"status"`
	TrackedDownloadStatus string          `json:"trackedDownloadStatus"`
	TrackedDownloadState  string          `json:"trackedDownloadState"`
	StatusMessages        []StatusMessage `json:"statusMessages"`
}

func (b wireRecordBase) record(image string, media Media) QueueRecord {
	return QueueRecord{
		ID:                    b.ID,
		DownloadID:            b.DownloadID,
		Title:                 b.Title,
		Protocol:              b.Protocol,
		Status:                b.Status,
		TrackedDownloadStatus: b.TrackedDownloadStatus,
		TrackedDownloadState:  b.TrackedDownloadState,
		StatusMessages:        b.StatusMessages,
		Image:                 image,
		Media:                 media,
	}
}

type wireImage struct {
	CoverType string `json:"coverType"`
	RemoteURL string `json:"remoteUrl"`
}

func posterURL(images []wireImage) string {
	for _, img := range images {
		if img.CoverType == "poster" && img.RemoteURL != "" {
			return img.RemoteURL
		}
	}
	return ""
}

func fetchQueue[T any](ctx context.Context, t *transport, instance domain.ArrInstance, page int, include url.Values, convert func(T) QueueRecord) (*QueuePage, error) {
	query := url.Values{}
	query.Set("page", fmt.Sprint(page))
	query.Set("pageSize", fmt.Sprint(PageSize))
	query.Set("sortKey", "timeleft")
	for k, v := range include {
		query[k] = v
	}

	endpoint, err := t.endpoint(instance, query, "queue")
	if err != nil {
		return nil, err
	}

	var wire wireQueue[T]
	if err := t.do(ctx, instance, http.MethodGet, endpoint, nil, &wire); err != nil {
		return nil, err
	}

	out := &QueuePage{
		Page:         page,
		TotalRecords: wire.TotalRecords,
		Records:      make([]QueueRecord, 0, len(wire.Records)),
	}
	for _, r := range wire.Records {
		out.Records = append(out.Records, convert(r))
	}
	return out, nil
}

func deleteQueueItem(ctx context.Context, t *transport, instance domain.ArrInstance, record QueueRecord, removeFromClient bool) error {
	query := url.Values{}
	query.Set("removeFromClient", fmt.Sprint(removeFromClient))
	query.Set("blocklist", "true")
	query.Set("skipRedownload", "true")
	query.Set("changeCategory", "false")

	endpoint, err := t.endpoint(instance, query, "queue", fmt.Sprint(record.ID))
	if err != nil {
		return err
	}

	return t.do(ctx, instance, http.MethodDelete, endpoint, nil, nil)
}

func postCommand(ctx context.Context, t *transport, instance domain.ArrInstance, command any) error {
	endpoint, err := t.endpoint(instance, nil, "command")
	if err != nil {
		return err
	}

	return t.do(ctx, instance, http.MethodPost, endpoint, command, nil)
}
