// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/autobrr/sweeparr/internal/domain"
	"github.com/autobrr/sweeparr/pkg/hashutil"
)

type ignoredFile struct {
	Hashes []string `yaml:"hashes"`
}

// LoadIgnoredDownloads merges the inline ignoredDownloads list with the
// optional YAML file. The file may be a plain sequence of hashes or a
// mapping with a hashes key.
func LoadIgnoredDownloads(cfg *domain.Config) (*hashutil.Set, error) {
	set := hashutil.NewSet(cfg.IgnoredDownloads...)
	if cfg.IgnoredDownloadsPath == "" {
		return set, nil
	}

	data, err := os.ReadFile(cfg.IgnoredDownloadsPath)
	if err != nil {
		return nil, fmt.Errorf("read ignored downloads: %w", err)
	}

	hashes, err := parseIgnored(data)
	if err != nil {
		return nil, fmt.Errorf("parse ignored downloads %s: %w", cfg.IgnoredDownloadsPath, err)
	}
	for _, hash := range hashes {
		set.Add(hash)
	}
	return set, nil
}

func parseIgnored(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var hashes []string
		if err := root.Decode(&hashes); err != nil {
			return nil, err
		}
		return hashes, nil
	case yaml.MappingNode:
		var file ignoredFile
		if err := root.Decode(&file); err != nil {
			return nil, err
		}
		return file.Hashes, nil
	default:
		return nil, errors.New("expected a list of hashes")
	}
}
