// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package blocklist loads filename blocklists and decides whether a file of a
// download is wanted.
package blocklist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/pkg/httphelpers"
	"github.com/autobrr/sweeparr/pkg/redact"
)

const classifyConcurrency = 5

// List is an immutable, loaded blocklist.
type List struct {
	Type     ListType
	Patterns []string
	Regexes  []*regexp.Regexp
	Checksum uint64
}

func (l *List) IsValid(filename string) bool {
	return IsValid(filename, l.Type, l.Patterns, l.Regexes)
}

type contentKey struct {
	checksum uint64
	listType ListType
}

// Provider loads one list per arr type, once per process lifetime. Arr types
// pointing at identical content share one compiled list.
type Provider struct {
	client *http.Client
	logger zerolog.Logger

	mu        sync.Mutex
	lists     map[domain.InstanceType]*List
	byContent map[contentKey]*List
}

func NewProvider(client *http.Client) *Provider {
	if client == nil {
		client = http.DefaultClient
	}

	return &Provider{
		client:    client,
		logger:    log.With().Str("component", "blocklist").Logger(),
		lists:     make(map[domain.InstanceType]*List),
		byContent: make(map[contentKey]*List),
	}
}

// Load reads source, a local path or an http(s) URL, and classifies every
// line as a regex or a literal pattern. Loading an already loaded arr type
// is a no-op.
func (p *Provider) Load(ctx context.Context, instanceType domain.InstanceType, source string, listType ListType) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, loaded := p.lists[instanceType]; loaded {
		return nil
	}

	data, err := p.read(ctx, source)
	if err != nil {
		return errors.Wrapf(err, "could not read blocklist for %s", instanceType)
	}

	key := contentKey{checksum: xxhash.Sum64(data), listType: listType}
	if list, ok := p.byContent[key]; ok {
		p.lists[instanceType] = list
		p.logger.Info().
			Str("arr", string(instanceType)).
			Str("checksum", fmt.Sprintf("%016x", key.checksum)).
			Msg("blocklist content already loaded, reusing")
		return nil
	}

	patterns, regexes, err := classify(ctx, splitLines(data))
	if err != nil {
		return errors.Wrapf(err, "could not classify blocklist for %s", instanceType)
	}

	list := &List{
		Type:     listType,
		Patterns: patterns,
		Regexes:  regexes,
		Checksum: key.checksum,
	}
	p.lists[instanceType] = list
	p.byContent[key] = list

	p.logger.Info().
		Str("arr", string(instanceType)).
		Str("type", string(listType)).
		Int("patterns", len(patterns)).
		Int("regexes", len(regexes)).
		Str("checksum", fmt.Sprintf("%016x", list.Checksum)).
		Msg("blocklist loaded")

	return nil
}

// Get returns the loaded list for the arr type.
func (p *Provider) Get(instanceType domain.InstanceType) (*List, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, ok := p.lists[instanceType]
	return list, ok
}

func (p *Provider) read(ctx context.Context, source string) ([]byte, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("blocklist source is empty")
	}

	lower := strings.ToLower(source)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return os.ReadFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, redact.URLError(err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, redact.URL(source))
	}

	return io.ReadAll(resp.Body)
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// classify compiles lines concurrently. Lines that are not valid regular
// expressions become literal patterns. Input order is preserved in both sets.
func classify(ctx context.Context, lines []string) ([]string, []*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, len(lines))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(classifyConcurrency)

	for i, line := range lines {
		g.Go(func() error {
			re, err := regexp.Compile("(?i)" + line)
			if err != nil {
				return nil
			}
			compiled[i] = re
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var patterns []string
	var regexes []*regexp.Regexp
	for i, re := range compiled {
		if re != nil {
			regexes = append(regexes, re)
			continue
		}
		patterns = append(patterns, lines[i])
	}

	return patterns, regexes, nil
}
